// Package dialog provides the dialog-service collaborator consumed by the
// conversation orchestrator.
//
// The dialog service interprets user utterances against a configured
// conversational model and returns structured dialog state. The orchestrator
// depends only on the Client interface; HTTPClient is the concrete
// implementation for deployments fronting the service over REST.
package dialog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Response is the structured result of one dialog round trip.
type Response struct {
	Message           string            `json:"message"`
	MessageFormat     string            `json:"messageFormat,omitempty"`
	SessionAttributes map[string]string `json:"sessionAttributes"`
	DialogState       string            `json:"dialogState,omitempty"`
	IntentName        string            `json:"intentName,omitempty"`
	SlotToElicit      string            `json:"slotToElicit,omitempty"`
	Slots             map[string]string `json:"slots,omitempty"`
}

// Client posts user utterances to the dialog service.
type Client interface {
	// PostText sends one utterance with the round-tripped session attribute
	// bag and returns the structured dialog response.
	PostText(ctx context.Context, text, localeID string, sessionAttributes map[string]string) (*Response, error)
}

// Default client configuration.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxRetries     = 3
)

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.httpClient = hc }
}

// WithMaxRetries sets the retry ceiling of the transport.
func WithMaxRetries(n uint64) Option {
	return func(c *HTTPClient) { c.maxRetries = n }
}

// HTTPClient implements Client over a REST endpoint. Transport and 5xx
// failures are retried with exponential backoff; 4xx responses are
// permanent, matching the gateway's transport.
type HTTPClient struct {
	endpoint   string
	httpClient *http.Client
	maxRetries uint64
}

// NewHTTPClient creates a dialog client for the given endpoint.
func NewHTTPClient(endpoint string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: DefaultRequestTimeout},
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PostText sends one utterance to the dialog service.
func (c *HTTPClient) PostText(ctx context.Context, text, localeID string, sessionAttributes map[string]string) (*Response, error) {
	body, err := json.Marshal(map[string]any{
		"inputText":         text,
		"localeId":          localeID,
		"sessionAttributes": sessionAttributes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode dialog request: %w", err)
	}

	var data []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/postText", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("dialog service returned status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("dialog service returned status %d", resp.StatusCode))
		}
		data = payload
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		slog.Debug("dialog.PostText: request failed after retries", "error", err)
		return nil, err
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode dialog response: %w", err)
	}
	if out.SessionAttributes == nil {
		out.SessionAttributes = make(map[string]string)
	}
	slog.Debug("dialog.PostText: response received", "dialogState", out.DialogState, "messageLength", len(out.Message))
	return &out, nil
}
