package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	vlog "github.com/MrARwho/project-uvm/internal/log"
)

// DefaultEndpoint is the Generative Language API base.
const DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"

// HTTPClient calls models/{model}:generateContent directly.
type HTTPClient struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	Retry      RetryPolicy
	HTTPClient *http.Client

	// OnRetry, when set, is told about every retry before its backoff.
	OnRetry func(attempt int, err error)

	sleep sleeper
}

// NewHTTPClient builds a client for endpoint using the given credential.
func NewHTTPClient(endpoint, apiKey string, timeout time.Duration, retry RetryPolicy) *HTTPClient {
	return &HTTPClient{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Timeout:  timeout,
		Retry:    retry,
	}
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

func (c *HTTPClient) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func (c *HTTPClient) url(model string) string {
	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(endpoint, "/"), url.PathEscape(model), url.QueryEscape(c.APIKey))
}

// Generate performs the POST, retrying per c.Retry.
func (c *HTTPClient) Generate(ctx context.Context, req Request) (Response, error) {
	req = req.WithDefaults()

	payload := generateRequest{
		Contents: []content{{Parts: []part{{Text: req.Prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxOutputTokens,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	start := time.Now()
	resp, err := c.Retry.do(ctx, c.sleep, c.OnRetry, func() (Response, error) {
		return c.post(ctx, req.Model, body)
	})
	if err != nil {
		return Response{}, err
	}
	vlog.Debug("backend call finished", "model", req.Model, "kind", resp.Kind,
		"prompt_len", len(req.Prompt), "duration", time.Since(start))
	return resp, nil
}

func (c *HTTPClient) post(ctx context.Context, model string, body []byte) (Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(model), bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client().Do(httpReq)
	if err != nil {
		return Response{}, &TransportError{Err: redact(err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, &TransportError{Err: fmt.Errorf("reading response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{}, &TransportError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return Normalize(respBody), nil
}

// redact drops the request URL, which carries the credential, from
// transport errors.
func redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}

// Normalize decodes a generateContent payload. The text at
// candidates[0].content.parts[0].text yields a KindText response; any other
// shape yields KindRaw holding the decoded document unchanged. A body that
// is not JSON at all is kept as a raw string.
func Normalize(body []byte) Response {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		vlog.Warn("backend payload is not JSON", "err", err)
		return RawResponse(string(body))
	}

	usage := usageOf(doc)
	text, ok := textOf(doc)
	if !ok {
		vlog.Warn("backend payload has unexpected shape, keeping raw document")
		r := RawResponse(doc)
		r.Usage = usage
		return r
	}
	r := TextResponse(text)
	r.Usage = usage
	return r
}

func textOf(doc any) (string, bool) {
	root, ok := doc.(map[string]any)
	if !ok {
		return "", false
	}
	candidates, ok := root["candidates"].([]any)
	if !ok || len(candidates) == 0 {
		return "", false
	}
	candidate, ok := candidates[0].(map[string]any)
	if !ok {
		return "", false
	}
	c, ok := candidate["content"].(map[string]any)
	if !ok {
		return "", false
	}
	parts, ok := c["parts"].([]any)
	if !ok || len(parts) == 0 {
		return "", false
	}
	p, ok := parts[0].(map[string]any)
	if !ok {
		return "", false
	}
	text, ok := p["text"].(string)
	return text, ok
}

func usageOf(doc any) Usage {
	root, ok := doc.(map[string]any)
	if !ok {
		return Usage{}
	}
	meta, ok := root["usageMetadata"].(map[string]any)
	if !ok {
		return Usage{}
	}
	var u Usage
	if v, ok := meta["promptTokenCount"].(float64); ok {
		u.PromptTokens = int(v)
	}
	if v, ok := meta["candidatesTokenCount"].(float64); ok {
		u.OutputTokens = int(v)
	}
	return u
}
