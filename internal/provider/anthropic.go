package provider

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultModel is used when the config doesn't name one.
const DefaultModel = "claude-sonnet-4-5"

// maxOutputTokens bounds a single persona's review output.
const maxOutputTokens = 4096

// Anthropic calls the Anthropic Messages API.
type Anthropic struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewAnthropic creates a provider with the given API key and model.
// An empty key falls back to the SDK's environment lookup.
func NewAnthropic(apiKey, model string) *Anthropic {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = DefaultModel
	}
	client := anthropic.NewClient(opts...)
	return &Anthropic{
		api:   &client,
		model: anthropic.Model(model),
	}
}

func (a *Anthropic) Name() string { return "anthropic" }

// Generate runs one completion and returns the first text block.
func (a *Anthropic) Generate(ctx context.Context, systemPrompt, content string) (string, error) {
	msg, err := a.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: maxOutputTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(content)),
		},
	})
	if err != nil {
		return "", ClassifyAnthropicError(err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", &Error{Kind: KindOther, Message: "no text content in API response"}
	}
	return text, nil
}

// ClassifyAnthropicError converts an SDK error into a classified
// *Error. Timeouts and cancellations pass through unwrapped so the
// caller can distinguish its own deadline from a provider failure.
func ClassifyAnthropicError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return &Error{Kind: KindAuth, Message: "invalid API key", Err: err}
		case 429:
			return &Error{Kind: KindRateLimit, Message: "rate limit exceeded", Err: err}
		case 400:
			return &Error{Kind: KindBadRequest, Message: "malformed request", Err: err}
		}
		if apiErr.StatusCode >= 500 {
			return &Error{Kind: KindConnection, Message: "upstream unavailable", Err: err}
		}
		return &Error{Kind: KindOther, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{Kind: KindConnection, Message: "network failure", Err: err}
	}
	// The SDK sometimes surfaces transport errors as plain strings.
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection") || strings.Contains(msg, "dial") {
		return &Error{Kind: KindConnection, Err: err}
	}
	return &Error{Kind: KindOther, Err: err}
}
