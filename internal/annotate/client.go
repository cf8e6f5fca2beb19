package annotate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"codedox/internal/model"
)

// Annotation is the metadata produced for one code block.
type Annotation struct {
	Language    string `json:"language"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Input is one block submitted for annotation with its extracted context.
type Input struct {
	Code        string
	Language    string
	Title       string
	Description string
	SourceURL   string
}

// Client produces annotations for batches of code blocks.
type Client interface {
	Annotate(ctx context.Context, batch []Input) ([]Annotation, error)
}

// ChatClient talks to an OpenAI-compatible chat completions endpoint.
type ChatClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

func NewChatClient(apiKey, baseURL, model string, timeout time.Duration) *ChatClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &ChatClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    &http.Client{Timeout: timeout},
	}
}

// Model returns the configured model name for metrics labels.
func (c *ChatClient) Model() string { return c.model }

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const systemPrompt = "You annotate code snippets from technical documentation. " +
	"For each snippet produce: language (lowercase identifier, keep the given one if present), " +
	"title (3-10 words naming what the code does), " +
	"description (10-30 words grounded in the snippet and its context). " +
	`Respond with a single JSON object {"items": [{"language", "title", "description"}, ...]} ` +
	"with exactly one item per snippet, in order, and no extra text."

// Annotate sends one batch to the chat endpoint. Transient failures
// (network, 5xx, 429) are retried up to three times with exponential
// backoff; everything else fails the batch so the caller can fall back.
func (c *ChatClient) Annotate(ctx context.Context, batch []Input) ([]Annotation, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(batch)},
		},
		Temperature:    0.0,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, model.Wrap(model.KindAnnotator, "marshal request", err)
	}

	var out []Annotation
	backoff := retry.WithMaxRetries(3, retry.NewExponential(time.Second))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		anns, err := c.call(ctx, payload, len(batch))
		if err != nil {
			return err
		}
		out = anns
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ChatClient) call(ctx context.Context, payload []byte, want int) ([]Annotation, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, model.Wrap(model.KindAnnotator, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, model.Wrap(model.KindCancelled, "annotate cancelled", ctx.Err())
		}
		return nil, retry.RetryableError(model.Wrap(model.KindAnnotator, "chat request", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, retry.RetryableError(model.Wrap(model.KindAnnotator, "read response", err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, retry.RetryableError(model.E(model.KindAnnotator,
			fmt.Sprintf("chat endpoint returned %d", resp.StatusCode)))
	default:
		return nil, model.E(model.KindAnnotator,
			fmt.Sprintf("chat endpoint returned %d: %s", resp.StatusCode, truncateBody(body)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, model.Wrap(model.KindAnnotator, "decode response", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, model.E(model.KindAnnotator, "chat response has no choices")
	}

	return parseAnnotations(parsed.Choices[0].Message.Content, want)
}

func buildPrompt(batch []Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Annotate these %d snippets.\n", len(batch))
	for i, in := range batch {
		fmt.Fprintf(&b, "\n--- snippet %d ---\n", i+1)
		if in.Language != "" {
			fmt.Fprintf(&b, "language hint: %s\n", in.Language)
		}
		if in.Title != "" {
			fmt.Fprintf(&b, "section: %s\n", in.Title)
		}
		if in.Description != "" {
			fmt.Fprintf(&b, "context: %s\n", in.Description)
		}
		if in.SourceURL != "" {
			fmt.Fprintf(&b, "url: %s\n", in.SourceURL)
		}
		fmt.Fprintf(&b, "code:\n%s\n", in.Code)
	}
	return b.String()
}

// parseAnnotations accepts either the requested {"items": [...]} shape
// or a bare JSON array, salvaging the first JSON value in the text when
// the model wraps it in prose.
func parseAnnotations(content string, want int) ([]Annotation, error) {
	var wrapper struct {
		Items []Annotation `json:"items"`
	}
	if err := json.Unmarshal([]byte(content), &wrapper); err == nil && len(wrapper.Items) > 0 {
		return padAnnotations(wrapper.Items, want), nil
	}

	var items []Annotation
	if err := json.Unmarshal([]byte(content), &items); err == nil && len(items) > 0 {
		return padAnnotations(items, want), nil
	}

	start := strings.IndexAny(content, "[{")
	end := strings.LastIndexAny(content, "]}")
	if start == -1 || end <= start {
		return nil, model.Wrap(model.KindAnnotator, "parse annotations",
			errors.New("no JSON value found in content"))
	}
	inner := content[start : end+1]
	if err := json.Unmarshal([]byte(inner), &wrapper); err == nil && len(wrapper.Items) > 0 {
		return padAnnotations(wrapper.Items, want), nil
	}
	if err := json.Unmarshal([]byte(inner), &items); err != nil {
		return nil, model.Wrap(model.KindAnnotator, "parse annotations", err)
	}
	return padAnnotations(items, want), nil
}

func padAnnotations(items []Annotation, want int) []Annotation {
	if len(items) >= want {
		return items[:want]
	}
	out := make([]Annotation, want)
	copy(out, items)
	return out
}

func truncateBody(b []byte) string {
	const max = 200
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}
