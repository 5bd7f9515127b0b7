package provider

import (
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/undergrace/mbc/pkg/mbc"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouter adapts the OpenRouter gateway, which speaks the Chat
// Completions dialect. Only the base URL and the optional attribution
// headers differ from the OpenAI adapter.
type OpenRouter struct {
	openAICompatible
}

// NewOpenRouter creates the adapter. siteURL and siteName feed the
// HTTP-Referer and X-Title attribution headers when set.
func NewOpenRouter(apiKey, baseURL, siteURL, siteName string) (*OpenRouter, error) {
	if apiKey == "" {
		return nil, &mbc.ProviderError{Provider: "openrouter", Message: "API key is not configured"}
	}

	if baseURL == "" {
		baseURL = openRouterBaseURL
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}
	if siteURL != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", siteURL))
	}
	if siteName != "" {
		opts = append(opts, option.WithHeader("X-Title", siteName))
	}

	return &OpenRouter{openAICompatible{
		name:   "openrouter",
		client: openai.NewClient(opts...),
	}}, nil
}
