// Package llm wraps the opaque language-model capability the Executor Agent
// drives: a plain-text completion call, and a "grounded" variant that is
// additionally asked to cite sources. Grounded on detent's
// internal/heal/client (API error formatting) and internal/heal/loop
// (token accounting, cost calculation); generalized from "Claude decides to
// call a healing tool" to "Claude decides the executor's next action",
// which in this spec is itself a JSON object the model emits as text rather
// than a native tool-use block (§4.6c names the fields explicitly:
// thought/tool/args/status, including a non-tool "status" outcome that
// doesn't fit the tool-use shape).
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kandra-sh/kandra/internal/util"
)

const defaultRequestTimeout = 60 * time.Second

// Usage is returned alongside every completion so callers can accumulate
// TokenUsage and compare against a budget.
type Usage struct {
	TokenUsage
	CostUSD float64
}

// Client is the capability the Executor needs from a language model: plain
// completion, and grounded (web-search-assisted) completion. Modeling it as
// an interface keeps the executor package independent of the Anthropic SDK
// and testable with a fake.
type Client interface {
	// Complete sends systemPrompt and userPrompt as a single-turn request
	// and returns the model's raw text response.
	Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, Usage, error)

	// CompleteGrounded behaves like Complete but additionally asks the
	// model to ground its answer and, where possible, cite sources; the
	// returned sources slice may be empty even on success.
	CompleteGrounded(ctx context.Context, model, prompt string) (text string, sources []string, usage Usage, err error)
}

// AnthropicClient is the default Client backed by the Anthropic Go SDK.
type AnthropicClient struct {
	api anthropic.Client
}

// New constructs an AnthropicClient from a resolved API key.
func New(apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("no API key provided")
	}
	return &AnthropicClient{
		api: anthropic.NewClient(
			option.WithAPIKey(apiKey),
			option.WithRequestTimeout(defaultRequestTimeout),
		),
	}, nil
}

// Complete implements Client.
func (c *AnthropicClient) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, Usage, error) {
	var (
		text  string
		usage Usage
	)

	err := util.Retry(ctx, func(ctx context.Context) error {
		resp, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: 8192,
			System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
			},
		})
		if err != nil {
			return formatAPIError(err)
		}

		usage.InputTokens = resp.Usage.InputTokens
		usage.OutputTokens = resp.Usage.OutputTokens
		usage.CacheCreationInputTokens = resp.Usage.CacheCreationInputTokens
		usage.CacheReadInputTokens = resp.Usage.CacheReadInputTokens
		usage.CostUSD = CalculateCost(model, usage.TokenUsage)
		text = extractText(resp)
		return nil
	}, util.WithMaxAttempts(3), util.WithInitialDelay(2*time.Second))
	if err != nil {
		return "", usage, err
	}
	return text, usage, nil
}

// CompleteGrounded implements Client. The Anthropic Go SDK version this
// module targets does not have a pack-verified server-side web-search tool
// binding, so grounding is approximated at the prompt level: the model is
// instructed to reason from known migration documentation and to list any
// URLs it references on their own lines prefixed "SOURCE:". Any such lines
// are parsed out as sources.
func (c *AnthropicClient) CompleteGrounded(ctx context.Context, model, prompt string) (string, []string, Usage, error) {
	groundedSystem := "You are assisting a code-migration agent that hit a repeated command failure. " +
		"Give a concrete, actionable fix. If you reference specific documentation or a known issue, " +
		"add a line starting with \"SOURCE: \" followed by the URL, one per source, up to three."

	text, usage, err := c.Complete(ctx, model, groundedSystem, prompt)
	if err != nil {
		return "", nil, usage, err
	}
	return text, extractSources(text), usage, nil
}

func extractText(resp *anthropic.Message) string {
	for i := range resp.Content {
		if text, ok := resp.Content[i].AsAny().(anthropic.TextBlock); ok {
			return text.Text
		}
	}
	return ""
}

func extractSources(text string) []string {
	var sources []string
	const prefix = "SOURCE:"
	for _, line := range strings.Split(text, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), prefix); ok {
			sources = append(sources, strings.TrimSpace(rest))
			if len(sources) == 3 {
				break
			}
		}
	}
	return sources
}

func formatAPIError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401:
			return fmt.Errorf("invalid API key: check ANTHROPIC_API_KEY or the kandra config file")
		case 403:
			return fmt.Errorf("API key lacks permission: %w", err)
		case 429:
			return fmt.Errorf("rate limited: too many requests, try again later")
		case 500, 502, 503:
			return fmt.Errorf("anthropic API unavailable (status %d): try again later", apiErr.StatusCode)
		case 529:
			return fmt.Errorf("anthropic API overloaded: try again later")
		default:
			return fmt.Errorf("API error (status %d): %w", apiErr.StatusCode, err)
		}
	}
	return fmt.Errorf("API request failed: %w", err)
}
