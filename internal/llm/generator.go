package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// Effort is the generation-effort hint attached to a request. It selects the
// model and the output budget; it never changes the request semantics.
type Effort string

const (
	// EffortFast is for classification, one-line summaries, and other calls
	// where latency matters more than depth.
	EffortFast Effort = "fast"
	// EffortStandard is the default for content generation.
	EffortStandard Effort = "standard"
	// EffortDeep is for decisions that benefit from longer reasoning.
	EffortDeep Effort = "deep"
)

// Request is one generation request against the capability boundary.
type Request struct {
	// System is the optional system prompt.
	System string
	// Prompt is the user-role prompt payload.
	Prompt string
	// Effort is the generation-effort hint.
	Effort Effort
	// MaxTokens caps the response length. Zero uses a per-effort default.
	MaxTokens int
}

// Generator is the text-generation capability. The concrete implementation
// talks to the Anthropic API; tests substitute fakes.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Generate executes a request and returns the concatenated text response.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		switch req.Effort {
		case EffortFast:
			maxTokens = 1024
		case EffortDeep:
			maxTokens = 8192
		default:
			maxTokens = 4096
		}
	}

	params := anthropic.MessageNewParams{
		Model:     c.modelFor(req.Effort),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := c.inner.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("API call failed: %w", err)
	}
	c.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var out strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(variant.Text)
		}
	}
	return out.String(), nil
}

// Validator is implemented by structured-output payloads that carry their own
// schema checks. A payload that fails validation is treated identically to a
// failed call: it never travels downstream.
type Validator interface {
	Validate() error
}

// GenerateJSON executes a request and decodes the JSON object or array found
// in the response into target. If target implements Validator, a validation
// failure is returned as an error.
func GenerateJSON(ctx context.Context, g Generator, req Request, target any) error {
	response, err := g.Generate(ctx, req)
	if err != nil {
		return err
	}
	if err := DecodeJSON(response, target); err != nil {
		return err
	}
	if v, ok := target.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("payload failed validation: %w", err)
		}
	}
	return nil
}

// DecodeJSON extracts the first JSON object or array from free text and
// unmarshals it into target. Models often wrap JSON in prose or fences.
func DecodeJSON(response string, target any) error {
	jsonStart := strings.Index(response, "{")
	braceEnd := strings.LastIndex(response, "}")
	bracketStart := strings.Index(response, "[")
	bracketEnd := strings.LastIndex(response, "]")

	start, end := jsonStart, braceEnd
	if jsonStart == -1 || (bracketStart != -1 && bracketStart < jsonStart) {
		start, end = bracketStart, bracketEnd
	}
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("no valid JSON found in response: %s", truncate(response, 200))
	}

	jsonStr := response[start : end+1]
	if err := json.Unmarshal([]byte(jsonStr), target); err != nil {
		return fmt.Errorf("parse JSON: %w (response: %s)", err, truncate(jsonStr, 200))
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
