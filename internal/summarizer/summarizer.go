package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"newsbrief/internal/model"

	"golang.org/x/time/rate"
)

const (
	requestTimeout = 30 * time.Second

	// Article text is truncated to this many bytes before prompting so
	// one oversized page cannot blow the completion context window.
	maxInputBytes = 12000

	defaultMaxTokens = 500
)

// GenerationError reports a failed language-model call.
type GenerationError struct {
	Op  string // "summary" or "translation"
	Err error
}

func (e *GenerationError) Error() string { return fmt.Sprintf("generate %s: %v", e.Op, e.Err) }

func (e *GenerationError) Unwrap() error { return e.Err }

// Client produces article summaries through a text-completion API.
// Requests are paced by a shared limiter so concurrent brief workers
// stay under the provider's rate limit.
type Client struct {
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	limiter   *rate.Limiter
	client    *http.Client
}

func New(baseURL, apiKey, llmModel string, maxTokens, requestsPerMinute int) *Client {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	var limiter *rate.Limiter
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	}

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		model:     llmModel,
		maxTokens: maxTokens,
		limiter:   limiter,
		client:    &http.Client{Timeout: requestTimeout},
	}
}

// Summarize produces a style-driven summary of text and, when lang is
// non-empty, a translation of that summary into lang.
func (c *Client) Summarize(ctx context.Context, text string, style model.Style, lang string) (string, string, error) {
	summary, err := c.complete(ctx, "summary", summaryPrompt(style, text))
	if err != nil {
		return "", "", err
	}

	if lang == "" {
		return summary, "", nil
	}

	translation, err := c.complete(ctx, "translation", translationPrompt(lang, summary))
	if err != nil {
		return "", "", err
	}

	return summary, translation, nil
}

type completionRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, op, prompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", &GenerationError{Op: op, Err: err}
		}
	}

	blob, err := json.Marshal(completionRequest{
		Model:       c.model,
		Prompt:      prompt,
		MaxTokens:   c.maxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		return "", &GenerationError{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/completions", bytes.NewReader(blob))
	if err != nil {
		return "", &GenerationError{Op: op, Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &GenerationError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &GenerationError{Op: op, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &GenerationError{Op: op, Err: err}
	}

	if len(parsed.Choices) == 0 {
		return "", &GenerationError{Op: op, Err: errors.New("empty completion response")}
	}

	return strings.TrimSpace(parsed.Choices[0].Text), nil
}

func summaryPrompt(style model.Style, text string) string {
	text = truncate(text, maxInputBytes)

	if style == model.StyleDetailed {
		return "Write a detailed summary of the following article. Cover the main points " +
			"and keep enough context for a reader who has not seen the original.\n\n" + text
	}

	return "Summarize the following article in a few sentences. Keep only the essentials, " +
		"no introductions or commentary.\n\n" + text
}

func translationPrompt(lang, summary string) string {
	return "Translate the following summary into " + lang + ". Output only the translation.\n\n" + summary
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}

	cut := value[:max]
	for !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}

	return cut
}
