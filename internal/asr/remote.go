package asr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Static errors for the remote engine.
var (
	// ErrBaseURLRequired is returned when the remote engine URL is not set.
	ErrBaseURLRequired = errors.New("asr: remote base URL is required")
	// ErrServerError is returned when the server responds with a 5xx status.
	ErrServerError = errors.New("asr: server error")
	// ErrRateLimited is returned when the server responds with 429.
	ErrRateLimited = errors.New("asr: rate limited")
	// ErrRequestFailed is returned on any other non-2xx response.
	ErrRequestFailed = errors.New("asr: request failed")
)

// RemoteEngine transcribes through a hosted recognition endpoint speaking a
// simple JSON protocol: POST /transcribe with the WAV payload, synchronous
// response carrying the segment list. Transient failures are retried with
// exponential backoff.
type RemoteEngine struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// RemoteOption configures a RemoteEngine.
type RemoteOption func(*RemoteEngine)

// WithAPIKey sets the bearer token for authentication.
func WithAPIKey(key string) RemoteOption {
	return func(e *RemoteEngine) {
		e.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(e *RemoteEngine) {
		e.httpClient = c
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) RemoteOption {
	return func(e *RemoteEngine) {
		e.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) RemoteOption {
	return func(e *RemoteEngine) {
		e.baseBackoff = d
	}
}

// NewRemoteEngine creates the HTTP engine. The API key may also come from
// the ASR_API_KEY environment variable; an empty key sends no Authorization
// header, which suits unauthenticated local deployments.
func NewRemoteEngine(baseURL string, opts ...RemoteOption) (*RemoteEngine, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	e := &RemoteEngine{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 300 * time.Second},
		maxRetries:  3,
		baseBackoff: 1 * time.Second,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.apiKey == "" {
		e.apiKey = os.Getenv("ASR_API_KEY")
	}

	return e, nil
}

// Name implements Engine.
func (e *RemoteEngine) Name() string { return "remote" }

// transcribeRequest is the request body for the /transcribe endpoint.
type transcribeRequest struct {
	WavBase64      string `json:"wav_base64"`
	Language       string `json:"language,omitempty"`
	WordTimestamps bool   `json:"word_timestamps"`
}

// Transcribe implements Engine.
func (e *RemoteEngine) Transcribe(ctx context.Context, wavPath string, opts Options) (Result, error) {
	wav, err := os.ReadFile(wavPath)
	if err != nil {
		return Result{}, fmt.Errorf("asr: read wav: %w", err)
	}

	body, err := json.Marshal(transcribeRequest{
		WavBase64:      base64.StdEncoding.EncodeToString(wav),
		Language:       opts.Language,
		WordTimestamps: opts.WordTimestamps,
	})
	if err != nil {
		return Result{}, fmt.Errorf("asr: marshal request: %w", err)
	}

	out, err := e.doRequestWithRetry(ctx, e.baseURL+"/transcribe", body)
	if err != nil {
		return Result{}, err
	}

	return parseWhisperOutput(out)
}

// doRequestWithRetry performs the request with exponential backoff on
// transient failures.
func (e *RemoteEngine) doRequestWithRetry(ctx context.Context, url string, body []byte) ([]byte, error) {
	var lastErr error
	backoff := e.baseBackoff

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("asr: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		out, err := e.doRequest(ctx, url, body)
		if err == nil {
			return out, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("asr: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request.
func (e *RemoteEngine) doRequest(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("asr: create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("asr: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("asr: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return nil, &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, truncate(string(respBody), 512))}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, truncate(string(respBody), 512))}
		}
		return nil, fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, truncate(string(respBody), 512))
	}

	return respBody, nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// Verify interface implementation at compile time.
var _ Engine = (*RemoteEngine)(nil)
