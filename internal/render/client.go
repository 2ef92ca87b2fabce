package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/Conceptual-Machines/variation-explorer/internal/models"
	"github.com/getsentry/sentry-go"
)

const (
	generationsPath = "/v1/images/generations"

	// exploration renders never go through img2img, strength is sent for completeness
	defaultStrength = 0.75

	maxErrorBodyChars = 500
)

// Result is what one render call produces.
type Result struct {
	AssetRefs    []string `json:"asset_refs"`
	ResolvedSeed int64    `json:"resolved_seed"`
}

// Client issues render requests against the diffusion backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets a network-level timeout for each request. Zero means none.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: d}
	}
}

// NewClient creates a render client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend address this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type generationRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	SampleSteps    int     `json:"sample_steps"`
	CfgScale       float64 `json:"cfg_scale"`
	Strength       float64 `json:"strength"`
	N              int     `json:"n"`
	SamplingMethod string  `json:"sampling_method"`
	Seed           int64   `json:"seed"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	SaveImage      bool    `json:"save_image"`
	NoBase64       bool    `json:"no_base64"`
}

type generationResponse struct {
	Data []struct {
		URL  string `json:"url"`
		Seed *int64 `json:"seed"`
	} `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// newGenerationRequest builds the exploration payload: one image, never saved to disk.
func newGenerationRequest(p models.ParameterSet) generationRequest {
	return generationRequest{
		Prompt:         p.Prompt,
		NegativePrompt: p.NegativePrompt,
		SampleSteps:    p.Steps,
		CfgScale:       p.GuidanceScale,
		Strength:       defaultStrength,
		N:              1,
		SamplingMethod: models.NormalizeSampler(p.Sampler),
		Seed:           p.Seed,
		Width:          p.Width,
		Height:         p.Height,
		SaveImage:      false,
		NoBase64:       true,
	}
}

// Render sends a single generation request for params.
//
// A cancelled ctx yields ErrCancelled. Transport errors and non-2xx responses
// wrap ErrNetworkFailure; a success without assets is ErrEmptyResult.
func (c *Client) Render(ctx context.Context, params models.ParameterSet) (Result, error) {
	span := sentry.StartSpan(ctx, "render.request")
	span.Description = fmt.Sprintf("%s %dx%d", params.Sampler, params.Width, params.Height)
	span.SetData("steps", params.Steps)
	span.SetData("seed", params.Seed)
	defer span.Finish()

	res, err := c.do(span.Context(), params)
	switch {
	case err == nil:
		span.Status = sentry.SpanStatusOK
	case IsCancelled(err):
		span.Status = sentry.SpanStatusCanceled
	default:
		span.Status = sentry.SpanStatusInternalError
	}
	return res, err
}

func (c *Client) do(ctx context.Context, params models.ParameterSet) (Result, error) {
	payload, err := json.Marshal(newGenerationRequest(params))
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal render request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generationsPath, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			return Result{}, ErrCancelled
		}
		return Result{}, fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Printf("⚠️  Failed to close render response body: %v", closeErr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			return Result{}, ErrCancelled
		}
		return Result{}, fmt.Errorf("%w: failed to read response: %v", ErrNetworkFailure, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return Result{}, &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	var decoded generationResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Result{}, fmt.Errorf("%w: failed to parse response: %v", ErrNetworkFailure, err)
	}
	if len(decoded.Data) == 0 {
		return Result{}, ErrEmptyResult
	}

	refs := make([]string, 0, len(decoded.Data))
	for _, item := range decoded.Data {
		if item.URL != "" {
			refs = append(refs, item.URL)
		}
	}
	if len(refs) == 0 {
		return Result{}, ErrEmptyResult
	}

	seed := params.Seed
	if resolved := decoded.Data[0].Seed; resolved != nil {
		seed = *resolved
	}

	return Result{AssetRefs: refs, ResolvedSeed: seed}, nil
}

// errorMessage prefers the backend's {"error": "..."} message over the raw body.
func errorMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		return er.Error
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "an error occurred while generating the image"
	}
	if len(msg) > maxErrorBodyChars {
		msg = msg[:maxErrorBodyChars] + "..."
	}
	return msg
}
