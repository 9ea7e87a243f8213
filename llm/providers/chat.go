// Package providers registers the chat completion APIs the llm client can talk to.
// Import it for side effects:
//
//	import _ "github.com/c360studio/kbqa/llm/providers"
package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/c360studio/kbqa/llm"
)

func init() {
	llm.RegisterProvider(&ChatProvider{ProviderName: "llamacpp", DefaultURL: "http://localhost:8080/v1", APIKeyEnv: "LLAMACPP_API_KEY"})
	llm.RegisterProvider(&ChatProvider{ProviderName: "ollama", DefaultURL: "http://localhost:11434/v1"})
	llm.RegisterProvider(&OpenAIProvider{ChatProvider{ProviderName: "openai", DefaultURL: "https://api.openai.com/v1", APIKeyEnv: "OPENAI_API_KEY"}})
}

// ChatProvider speaks the OpenAI chat completions format served by llama.cpp
// server, Ollama, vLLM and similar.
type ChatProvider struct {
	ProviderName string
	DefaultURL   string

	// APIKeyEnv names the environment variable holding a bearer token. Empty
	// means no Authorization header.
	APIKeyEnv string
}

// Name returns the provider identifier.
func (p *ChatProvider) Name() string {
	return p.ProviderName
}

// BuildURL constructs the chat completions endpoint.
func (p *ChatProvider) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = p.DefaultURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	return baseURL + "/chat/completions"
}

// SetHeaders adds the bearer token if one is configured.
func (p *ChatProvider) SetHeaders(req *http.Request) {
	if p.APIKeyEnv == "" {
		return
	}
	if apiKey := os.Getenv(p.APIKeyEnv); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildRequestBody creates the chat completions request body.
func (p *ChatProvider) BuildRequestBody(model string, messages []llm.Message, temperature *float64, maxTokens int) ([]byte, error) {
	apiMessages := make([]chatMessage, len(messages))
	for i, msg := range messages {
		apiMessages[i] = chatMessage{Role: msg.Role, Content: msg.Content}
	}

	req := chatRequest{
		Model:       model,
		Messages:    apiMessages,
		Temperature: temperature,
	}
	if maxTokens > 0 {
		req.MaxTokens = &maxTokens
	}
	return json.Marshal(req)
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ParseResponse extracts the first choice. A response without a model name
// is attributed to the requested model.
func (p *ChatProvider) ParseResponse(body []byte, model string) (*llm.Response, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, llm.NewTransientError(fmt.Errorf("parse %s response: %w", p.ProviderName, err))
	}
	if len(resp.Choices) == 0 {
		return nil, llm.NewTransientError(fmt.Errorf("no choices in %s response", p.ProviderName))
	}

	name := resp.Model
	if name == "" {
		name = model
	}
	return &llm.Response{
		Content: resp.Choices[0].Message.Content,
		Model:   name,
		Usage: llm.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		FinishReason: resp.Choices[0].FinishReason,
	}, nil
}
