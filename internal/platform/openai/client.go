package openai

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

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/convolab-backend/internal/observability"
	"github.com/yungbote/convolab-backend/internal/platform/envutil"
	"github.com/yungbote/convolab-backend/internal/platform/httpx"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

// Client is the subset of the OpenAI API the course pipeline needs.
type Client interface {
	// Structured outputs (json_schema)
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)

	// Speech renders text to audio in the requested format ("wav" by default).
	// It makes exactly one request; callers decide whether to retry.
	Speech(ctx context.Context, req SpeechRequest) ([]byte, error)
}

type SpeechRequest struct {
	Text   string
	Voice  string
	Speed  float64
	Format string
}

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	SpeechModel string
	Timeout     time.Duration
	MaxRetries  int
	Temperature *float64
}

// ConfigFromEnv reads OPENAI_* variables. OPENAI_TEMPERATURE=off omits the
// parameter for models that reject it.
func ConfigFromEnv() Config {
	cfg := Config{
		BaseURL:     strings.TrimRight(envutil.String("OPENAI_BASE_URL", "https://api.openai.com"), "/"),
		APIKey:      envutil.String("OPENAI_API_KEY", ""),
		Model:       envutil.String("OPENAI_MODEL", "gpt-4.1-mini"),
		SpeechModel: envutil.String("OPENAI_SPEECH_MODEL", "gpt-4o-mini-tts"),
		Timeout:     envutil.Duration("OPENAI_TIMEOUT_SECONDS", time.Second, 180*time.Second),
		MaxRetries:  envutil.Int("OPENAI_MAX_RETRIES", 4),
	}
	switch strings.ToLower(envutil.String("OPENAI_TEMPERATURE", "")) {
	case "off", "none", "false":
	case "":
		t := 0.2
		cfg.Temperature = &t
	default:
		t := envutil.Float("OPENAI_TEMPERATURE", 0.2)
		cfg.Temperature = &t
	}
	return cfg
}

const maxRetryAfterSeconds = 10

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &client{
		log:        log.With("service", "OpenAIClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, body)
}

func (e *openAIHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func isUnsupportedTemperatureParam(err error) bool {
	var he *openAIHTTPError
	if !errors.As(err, &he) || he.StatusCode != http.StatusBadRequest {
		return false
	}
	msg := strings.ToLower(he.Body)
	return strings.Contains(msg, "temperature") &&
		(strings.Contains(msg, "unsupported") || strings.Contains(msg, "not supported") || strings.Contains(msg, "only the default"))
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

// do sends body and returns the raw response. Retryable failures are retried
// up to maxRetries times with exponential backoff; a Retry-After header sets
// the next wait. The last failure is returned unwrapped.
func (c *client) do(ctx context.Context, method, path string, body any, maxRetries int) ([]byte, error) {
	ctx, span := observability.StartSpan(ctx, "openai.request", attribute.String("openai.path", path))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	attempt := 0
	op := func() ([]byte, error) {
		attempt++
		resp, raw, opErr := c.doOnce(ctx, method, path, body)
		if opErr == nil {
			return raw, nil
		}
		if !httpx.IsRetryableError(opErr) || attempt > maxRetries {
			return nil, backoff.Permanent(opErr)
		}
		if secs := httpx.RetryAfterSeconds(resp, maxRetryAfterSeconds); secs > 0 {
			c.log.Warn("OpenAI request throttled", "path", path, "retry_after_s", secs, "error", opErr.Error())
			return nil, backoff.RetryAfter(secs)
		}
		return nil, opErr
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = time.Duration(maxRetryAfterSeconds) * time.Second

	var raw []byte
	raw, err = backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(maxRetries+1)),
		backoff.WithNotify(func(nerr error, wait time.Duration) {
			c.log.Warn("OpenAI request retrying",
				"path", path,
				"attempt", attempt,
				"max_retries", maxRetries,
				"sleep", wait.String(),
				"error", nerr.Error(),
			)
		}),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	return raw, err
}

type inputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesRequest struct {
	Model string         `json:"model"`
	Input []inputMessage `json:"input"`
	Text  struct {
		Format map[string]any `json:"format,omitempty"`
	} `json:"text,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type    string `json:"type"`
			Text    string `json:"text,omitempty"`
			Refusal string `json:"refusal,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
}

func extractOutputText(resp responsesResponse) (text string, refusal string) {
	var out strings.Builder
	for _, item := range resp.Output {
		if item.Type != "message" || item.Role != "assistant" {
			continue
		}
		for _, c := range item.Content {
			switch c.Type {
			case "output_text":
				out.WriteString(c.Text)
			case "refusal":
				refusal = c.Refusal
			}
		}
	}
	return out.String(), refusal
}

func (c *client) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
	if schemaName == "" {
		return nil, errors.New("schemaName required")
	}
	if schema == nil {
		return nil, errors.New("schema required")
	}
	req := responsesRequest{
		Model: c.cfg.Model,
		Input: []inputMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.cfg.Temperature,
	}
	req.Text.Format = map[string]any{
		"type":   "json_schema",
		"name":   schemaName,
		"schema": schema,
		"strict": true,
	}

	raw, err := c.do(ctx, http.MethodPost, "/v1/responses", &req, c.cfg.MaxRetries)
	if err != nil && req.Temperature != nil && isUnsupportedTemperatureParam(err) {
		req.Temperature = nil
		raw, err = c.do(ctx, http.MethodPost, "/v1/responses", &req, c.cfg.MaxRetries)
	}
	if err != nil {
		return nil, err
	}

	var resp responsesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("openai decode error: %w", err)
	}
	text, refusal := extractOutputText(resp)
	if refusal != "" {
		return nil, fmt.Errorf("model refused: %s", refusal)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("no output_text found in response")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, fmt.Errorf("failed to parse model JSON: %w", err)
	}
	return obj, nil
}

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed,omitempty"`
}

func (c *client) Speech(ctx context.Context, req SpeechRequest) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("speech text required")
	}
	format := req.Format
	if format == "" {
		format = "wav"
	}
	body := speechRequest{
		Model:          c.cfg.SpeechModel,
		Input:          req.Text,
		Voice:          req.Voice,
		ResponseFormat: format,
		Speed:          req.Speed,
	}
	// the synthesis orchestrator owns speech retries
	return c.do(ctx, http.MethodPost, "/v1/audio/speech", &body, 0)
}
