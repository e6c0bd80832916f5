// Package gateway provides the HTTP client for the live-agent backend.
//
// Every operation is a JSON POST relative to the configured endpoint, issued
// through a retrying transport. The client knows nothing about chat
// semantics; it decodes wire envelopes into clean result types and leaves
// interpretation to the session manager.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/ChatBridge/internal/models"
	"github.com/cenkalti/backoff/v4"
)

// ErrPollTimeout reports that a getMessage call hit its per-call timeout.
// The poll loop treats it as "no messages this round", not a failure.
var ErrPollTimeout = errors.New("poll timed out with no messages")

// Default client configuration.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultPollTimeout    = 5 * time.Second
	DefaultMaxRetries     = 3
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPollTimeout sets the per-call timeout for GetMessage, distinct from
// the outer polling cadence.
func WithPollTimeout(d time.Duration) Option {
	return func(c *Client) { c.pollTimeout = d }
}

// WithMaxRetries sets the retry ceiling of the transport.
func WithMaxRetries(n uint64) Option {
	return func(c *Client) { c.maxRetries = n }
}

// Client issues retried POST requests to the live-agent backend.
type Client struct {
	endpoint    string
	httpClient  *http.Client
	pollTimeout time.Duration
	maxRetries  uint64
}

// NewClient creates a gateway client for the given live-agent endpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:    endpoint,
		httpClient:  &http.Client{Timeout: DefaultRequestTimeout},
		pollTimeout: DefaultPollTimeout,
		maxRetries:  DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	slog.Debug("gateway.NewClient: client created", "endpoint", endpoint, "pollTimeout", c.pollTimeout)
	return c
}

// post issues one JSON POST to path and returns the raw response body.
// Transport and 5xx failures are retried with exponential backoff; 4xx
// responses are permanent.
func (c *Client) post(ctx context.Context, path string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", path, err)
		}
	}

	var result []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("%s returned status %d", path, resp.StatusCode))
		}
		result = data
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		slog.Debug("gateway.post: request failed after retries", "path", path, "error", err)
		return nil, err
	}
	return result, nil
}

// CreateCaseRequest is the /createCase body.
type CreateCaseRequest struct {
	FirstName       string `json:"firstname"`
	LastName        string `json:"lastname"`
	Email           string `json:"email"`
	Language        string `json:"language"`
	PhoneNumber     string `json:"phonenumber"`
	CaseDescription string `json:"casedescription"`
	CaseSubject     string `json:"casesubject"`
}

// CaseDetails is the decoded /createCase result.
type CaseDetails struct {
	CaseNumber string
	CaseID     string
	ContactID  string
}

// outputValuesEnvelope is the array-of-outputValues wire shape shared by
// /createCase and /agentWaitTime.
type outputValuesEnvelope []struct {
	OutputValues map[string]any `json:"outputValues"`
}

func (env outputValuesEnvelope) value(key string) string {
	if len(env) == 0 {
		return ""
	}
	if s, ok := env[0].OutputValues[key].(string); ok {
		return s
	}
	return ""
}

// CreateCase opens a backend case carrying the collected profile fields and
// conversation subject.
func (c *Client) CreateCase(ctx context.Context, req CreateCaseRequest) (*CaseDetails, error) {
	data, err := c.post(ctx, "/createCase", req)
	if err != nil {
		return nil, err
	}
	var env outputValuesEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode createCase response: %w", err)
	}
	details := &CaseDetails{
		CaseNumber: env.value("var_CaseNumber"),
		CaseID:     env.value("var_CaseId"),
		ContactID:  env.value("var_Contact.Id"),
	}
	slog.Debug("gateway.CreateCase: case created", "caseNumber", details.CaseNumber)
	return details, nil
}

// AgentWaitTime returns the backend's current wait-time estimate.
func (c *Client) AgentWaitTime(ctx context.Context) (string, error) {
	data, err := c.post(ctx, "/agentWaitTime", nil)
	if err != nil {
		return "", err
	}
	var env outputValuesEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("failed to decode agentWaitTime response: %w", err)
	}
	return env.value("waitTime"), nil
}

// Session is the opaque token identifying one live-chat connection. It is
// passed back verbatim on every subsequent call.
type Session = json.RawMessage

// StartSession opens a live-chat session and returns its opaque token.
func (c *Client) StartSession(ctx context.Context) (Session, error) {
	data, err := c.post(ctx, "/startSession", nil)
	if err != nil {
		return nil, err
	}
	var session json.RawMessage
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode startSession response: %w", err)
	}
	slog.Debug("gateway.StartSession: session created")
	return Session(session), nil
}

// ConnectRequest is the /connect body.
type ConnectRequest struct {
	Session     Session          `json:"session"`
	ChatHistory []models.Message `json:"chat_history"`
	Username    string           `json:"livechat_username"`
	CaseID      string           `json:"caseId"`
	ContactID   string           `json:"contactId"`
}

// Connect attaches the session to the created case, handing the agent the
// transcript so far.
func (c *Client) Connect(ctx context.Context, req ConnectRequest) error {
	_, err := c.post(ctx, "/connect", req)
	return err
}

// GetMessage long-polls for backend events under the client's short per-call
// timeout. A timeout is reported as ErrPollTimeout.
func (c *Client) GetMessage(ctx context.Context, session Session, targetLanguage string) (*models.PollResponse, error) {
	pollCtx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	body := map[string]any{
		"session":        session,
		"targetLanguage": targetLanguage,
	}
	data, err := c.post(pollCtx, "/getMessage", body)
	if err != nil {
		if pollCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, ErrPollTimeout
		}
		return nil, err
	}
	return models.DecodePollResponse(data)
}

// SendMessageRequest is the /sendMessage body.
type SendMessageRequest struct {
	Message        string  `json:"message"`
	Session        Session `json:"session"`
	SourceLanguage string  `json:"sourceLanguage"`
	TargetLanguage string  `json:"targetLanguage"`
}

// SendMessage relays one user message to the agent.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) error {
	_, err := c.post(ctx, "/sendMessage", req)
	return err
}

// EndChat tells the backend the session is over.
func (c *Client) EndChat(ctx context.Context, session Session) error {
	_, err := c.post(ctx, "/endChat", map[string]any{"session": session})
	return err
}

// Translate translates a message into the target language.
func (c *Client) Translate(ctx context.Context, targetLanguage, message string) (string, error) {
	data, err := c.post(ctx, "/translate", map[string]string{
		"targetLanguage": targetLanguage,
		"message":        message,
	})
	if err != nil {
		return "", err
	}
	var resp struct {
		Translation string `json:"translation"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("failed to decode translate response: %w", err)
	}
	return resp.Translation, nil
}
