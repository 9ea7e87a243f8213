package providers

import (
	"net/http"
	"os"
)

// OpenAIProvider is the hosted OpenAI API, or OpenRouter when the
// OPENROUTER_* variables are set.
type OpenAIProvider struct {
	ChatProvider
}

// SetHeaders adds OpenAI authentication and OpenRouter attribution headers.
func (o *OpenAIProvider) SetHeaders(req *http.Request) {
	o.ChatProvider.SetHeaders(req)

	if siteURL := os.Getenv("OPENROUTER_SITE_URL"); siteURL != "" {
		req.Header.Set("HTTP-Referer", siteURL)
	}
	if siteName := os.Getenv("OPENROUTER_SITE_NAME"); siteName != "" {
		req.Header.Set("X-Title", siteName)
	}
}
