package suggest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"google.golang.org/api/generativelanguage/v1beta"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"jizhang/internal/core"
)

// GeminiConfig configures the Gemini suggester.
type GeminiConfig struct {
	APIKey string
	Model  string
	// Endpoint overrides the API base URL, for tests.
	Endpoint string
	// Attempts is the number of tries for rate limited or unavailable responses.
	Attempts uint
	// RetryDelay is the base delay between tries.
	RetryDelay time.Duration
}

// GeminiSuggester asks a Gemini model for the category.
type GeminiSuggester struct {
	svc    *generativelanguage.Service
	model  string
	config GeminiConfig
}

var errEmptyAnswer = errors.New("model returned no candidates")

func NewGeminiSuggester(ctx context.Context, cfg GeminiConfig) (*GeminiSuggester, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("missing Gemini API key")
	}
	if cfg.Model == "" {
		return nil, errors.New("missing Gemini model")
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}

	opts := []option.ClientOption{option.WithHTTPClient(newHTTPClient(cfg.APIKey))}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := generativelanguage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create generative language service: %w", err)
	}

	model := cfg.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	slog.InfoContext(ctx, "Gemini suggester ready", "model", model)
	return &GeminiSuggester{svc: svc, model: model, config: cfg}, nil
}

func (g *GeminiSuggester) Suggest(ctx context.Context, description string) (core.Category, error) {
	req := &generativelanguage.GenerateContentRequest{
		Contents: []*generativelanguage.Content{{
			Role:  "user",
			Parts: []*generativelanguage.Part{{Text: Prompt(description)}},
		}},
		GenerationConfig: &generativelanguage.GenerationConfig{
			ResponseMimeType: "application/json",
			CandidateCount:   1,
		},
	}

	var text string
	err := retry.Do(
		func() error {
			resp, err := g.svc.Models.GenerateContent(g.model, req).Context(ctx).Do()
			if err != nil {
				return err
			}
			text, err = firstText(resp)
			return err
		},
		retry.RetryIf(func(err error) bool {
			if ctx.Err() != nil {
				return false
			}
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) && (apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500) {
				slog.WarnContext(ctx, "Gemini request failed, will retry", "code", apiErr.Code)
				return true
			}
			return false
		}),
		retry.Attempts(g.config.Attempts),
		retry.Delay(g.config.RetryDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	return parseAnswer(text), nil
}

func firstText(resp *generativelanguage.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errEmptyAnswer
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, p := range cand.Content.Parts {
			if p != nil {
				sb.WriteString(p.Text)
			}
		}
		if s := strings.TrimSpace(sb.String()); s != "" {
			return s, nil
		}
	}
	return "", errEmptyAnswer
}

// apiKeyTransport authenticates requests with the x-goog-api-key header.
type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("x-goog-api-key", t.key)
	return t.base.RoundTrip(r)
}

// newHTTPClient creates an HTTP client with connection pooling and bounded timeouts.
func newHTTPClient(apiKey string) *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: &apiKeyTransport{key: apiKey, base: transport},
		Timeout:   60 * time.Second,
	}
}
