// Package backend talks to the generative-text service.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	DefaultModel           = "gemini-2.5-pro"
	DefaultTemperature     = 0.2
	DefaultMaxOutputTokens = 4096
)

// Client sends one prompt and returns the normalised answer.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Request carries the prompt and sampling parameters of one call.
type Request struct {
	Prompt          string
	Model           string
	Temperature     float64
	MaxOutputTokens int
}

// NewRequest returns a request with the default sampling parameters.
func NewRequest(prompt string) Request {
	return Request{
		Prompt:          prompt,
		Model:           DefaultModel,
		Temperature:     DefaultTemperature,
		MaxOutputTokens: DefaultMaxOutputTokens,
	}
}

// WithDefaults fills an empty model and a non-positive token cap. Temperature
// is kept as given since zero is a valid setting.
func (r Request) WithDefaults() Request {
	if r.Model == "" {
		r.Model = DefaultModel
	}
	if r.MaxOutputTokens <= 0 {
		r.MaxOutputTokens = DefaultMaxOutputTokens
	}
	return r
}

// Kind tags the variant held by a Response.
type Kind int

const (
	// KindText means the answer text was found at candidates[0].content.parts[0].text.
	KindText Kind = iota
	// KindRaw means the payload had another shape; Raw holds the decoded document.
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindRaw:
		return "raw"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Response is either Text or Raw, selected by Kind.
type Response struct {
	Kind  Kind
	Text  string
	Raw   any
	Usage Usage
}

// Usage is the token accounting reported by the backend, zero when absent.
type Usage struct {
	PromptTokens int
	OutputTokens int
}

func TextResponse(text string) Response { return Response{Kind: KindText, Text: text} }

func RawResponse(doc any) Response { return Response{Kind: KindRaw, Raw: doc} }

// Printable renders the response for persistence: the text as is, or the raw
// document as indented JSON.
func (r Response) Printable() string {
	if r.Kind == KindText {
		return r.Text
	}
	if s, ok := r.Raw.(string); ok {
		return s
	}
	data, err := json.MarshalIndent(r.Raw, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", r.Raw)
	}
	return string(data)
}
