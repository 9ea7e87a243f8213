package index

import (
	"fmt"
	"strings"
)

// extractionPrompt asks for knowledge triplets. The first %d is the path
// limit, the %s is the chunk text.
const extractionPrompt = `Some text is provided below. Given the text, extract up to %d knowledge triplets in the form of (subject, predicate, object). Avoid stopwords.
---------------------
Example:
Text: Alice is Bob's mother.
Triplets:
(Alice, is mother of, Bob)
Text: Philz is a coffee shop founded in Berkeley in 1982.
Triplets:
(Philz, is, coffee shop)
(Philz, founded in, Berkeley)
(Philz, founded in, 1982)
---------------------
Text: %s
Triplets:
`

// keywordPrompt asks for lookup keywords and synonyms. The %d is the keyword
// limit, the %s is the question.
const keywordPrompt = `Given some initial query, generate synonyms or related keywords up to %d in total, considering possible cases of capitalization, pluralization, common expressions, etc.
Provide all synonyms/keywords separated by '^' symbols: 'keyword1^keyword2^...'
Note, result should be in one-line, separated by '^' symbols.
----
QUERY: %s
----
KEYWORDS: `

// answerSystemPrompt frames answer synthesis.
const answerSystemPrompt = `You are an expert Q&A system that is trusted around the world.
Always answer the query using the provided context information, and not prior knowledge.
Some rules to follow:
1. Never directly reference the given context in your answer.
2. Avoid statements like 'Based on the context, ...' or 'The context information ...' or anything along those lines.`

// answerUserPrompt carries the context and the question.
const answerUserPrompt = `Context information is below.
---------------------
%s
---------------------
Given the context information and not prior knowledge, answer the query.
Query: %s
Answer: `

// factsHeader introduces the triplets of a source that also carries its text.
const factsHeader = "Here are some facts extracted from the provided text:\n\n"

func buildExtractionPrompt(text string, maxPaths int) string {
	return fmt.Sprintf(extractionPrompt, maxPaths, text)
}

func buildKeywordPrompt(question string, maxKeywords int) string {
	return fmt.Sprintf(keywordPrompt, maxKeywords, question)
}

func buildAnswerPrompt(contexts []string, question string) string {
	return fmt.Sprintf(answerUserPrompt, strings.Join(contexts, "\n\n"), question)
}
