// Chat-completions client for the multimodal inference endpoint.
//
// Failures are classified so the duel engine can pick the right fallback:
// transport errors come back as-is, non-2xx statuses as *HTTPError, and a
// well-formed response with no usable text as ErrEmptyResponse.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrEmptyResponse marks a 2xx response whose choices carried no text.
var ErrEmptyResponse = errors.New("no choices returned")

// HTTPError is a non-success status from the inference endpoint.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("inference http %d: %s", e.Status, truncate(e.Body, 800))
}

// Client talks to one configured chat/completions endpoint.
type Client struct {
	cfg Config
	hc  *http.Client
}

func New(cfg Config) *Client {
	return &Client{cfg: cfg, hc: &http.Client{Timeout: cfg.Timeout}}
}

// Configured reports whether an API key is available. Callers should take
// the fallback path when this is false rather than issuing doomed requests.
func (c *Client) Configured() bool { return strings.TrimSpace(c.cfg.APIKey) != "" }

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.cfg.Model }

// VisionPrompt is one image-grounded request: a system instruction plus a
// user turn of [text, image, supporting metadata].
type VisionPrompt struct {
	System   string
	Text     string
	ImageURL string
	Metadata string
}

// GuessFromImage sends the prompt and returns the primary text content of
// the first choice.
func (c *Client) GuessFromImage(ctx context.Context, p VisionPrompt) (string, error) {
	payload := map[string]any{
		"model": c.cfg.Model,
		"messages": []map[string]any{
			{"role": "system", "content": p.System},
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": p.Text},
				{"type": "image_url", "image_url": map[string]any{"url": p.ImageURL}},
				{"type": "text", "text": p.Metadata},
			}},
		},
		"temperature":       0.15,
		"max_output_tokens": 350,
		"top_p":             0.7,
	}

	b, _ := json.Marshal(payload)
	url := c.cfg.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(c.cfg.HeaderName, c.cfg.HeaderPrefix+c.cfg.APIKey)
	for k, v := range c.cfg.ExtraHeaders {
		setHeaderPreserveCase(req.Header, k, v)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	body := buf.Bytes()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &HTTPError{Status: resp.StatusCode, Body: string(body)}
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &cc); err != nil {
		return "", err
	}
	if len(cc.Choices) == 0 || strings.TrimSpace(cc.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return cc.Choices[0].Message.Content, nil
}

// setHeaderPreserveCase writes a header without canonicalizing its key, so
// OpenRouter's "HTTP-Referer" survives as sent.
func setHeaderPreserveCase(h http.Header, key, value string) {
	key = strings.TrimSpace(key)
	if key == "" || strings.TrimSpace(value) == "" {
		return
	}
	if http.CanonicalHeaderKey(key) == key {
		h.Set(key, value)
		return
	}
	h[key] = []string{value}
}

// SanitizeJSON strips markdown code fences some models wrap around their
// JSON output.
func SanitizeJSON(raw string) string {
	raw = strings.ReplaceAll(raw, "```json", "")
	raw = strings.ReplaceAll(raw, "```", "")
	return strings.TrimSpace(raw)
}

// ExtractJSONObject salvages the outermost {...} from sloppy output, or
// returns "" when none exists.
func ExtractJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(s, "}")
	if end < start {
		return ""
	}
	return strings.TrimSpace(s[start : end+1])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
