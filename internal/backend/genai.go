package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GenAIClient serves the same contract through the Google GenAI SDK.
type GenAIClient struct {
	client  *genai.Client
	retry   RetryPolicy
	onRetry func(int, error)
	sleep   sleeper
}

// GenAIOptions configures NewGenAIClient. BaseURL may include the API
// version suffix (".../v1beta"), which is split off for the SDK.
type GenAIOptions struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	Retry      RetryPolicy
	HTTPClient *http.Client
	OnRetry    func(attempt int, err error)
}

// NewGenAIClient creates an SDK-backed client for the Gemini API.
func NewGenAIClient(ctx context.Context, opts GenAIOptions) (*GenAIClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 300 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	cc := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if opts.BaseURL != "" {
		base := strings.TrimRight(opts.BaseURL, "/")
		version := ""
		if i := strings.LastIndex(base, "/"); i >= 0 && strings.HasPrefix(base[i+1:], "v1") {
			version = base[i+1:]
			base = base[:i]
		}
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: base + "/", APIVersion: version}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIClient{client: client, retry: opts.Retry, onRetry: opts.OnRetry}, nil
}

// Generate calls Models.GenerateContent with the request's sampling settings.
func (c *GenAIClient) Generate(ctx context.Context, req Request) (Response, error) {
	req = req.WithDefaults()
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxOutputTokens),
	}

	return c.retry.do(ctx, c.sleep, c.onRetry, func() (Response, error) {
		resp, err := c.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), cfg)
		if err != nil {
			return Response{}, &TransportError{Err: err}
		}
		return normalizeGenAI(resp), nil
	})
}

// normalizeGenAI applies the same shape rule as Normalize to an SDK response.
func normalizeGenAI(resp *genai.GenerateContentResponse) Response {
	var usage Usage
	if resp != nil && resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	if resp != nil && len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		if cand != nil && cand.Content != nil && len(cand.Content.Parts) > 0 && cand.Content.Parts[0] != nil {
			r := TextResponse(cand.Content.Parts[0].Text)
			r.Usage = usage
			return r
		}
	}

	var doc any
	if data, err := json.Marshal(resp); err == nil {
		_ = json.Unmarshal(data, &doc)
	}
	r := RawResponse(doc)
	r.Usage = usage
	return r
}
