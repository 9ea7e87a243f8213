// Package model provides capability-based model selection.
// Callers ask for a capability (extraction, keywords, answering) and the registry
// resolves it to configured endpoints with a fallback chain.
package model

// Capability represents a semantic capability for model selection.
type Capability string

const (
	// CapabilityExtraction pulls (subject, relation, object) triplets out of chunks.
	CapabilityExtraction Capability = "extraction"

	// CapabilityKeywords expands a question into graph lookup keywords.
	CapabilityKeywords Capability = "keywords"

	// CapabilityAnswering synthesizes an answer from retrieved context.
	CapabilityAnswering Capability = "answering"
)

// IsValid checks if a capability string is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityExtraction, CapabilityKeywords, CapabilityAnswering:
		return true
	}
	return false
}

// String returns the string representation of the capability.
func (c Capability) String() string {
	return string(c)
}
