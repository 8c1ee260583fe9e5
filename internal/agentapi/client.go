// Package agentapi is the HTTP client for the back-office agent service.
package agentapi

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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/inmobiliaria/gestion-chat/internal/auth"
	"github.com/inmobiliaria/gestion-chat/internal/chat"
	"github.com/inmobiliaria/gestion-chat/internal/middleware"
	"github.com/inmobiliaria/gestion-chat/internal/model"
	"github.com/inmobiliaria/gestion-chat/pkg/logger"
)

// DefaultTimeout bounds every request when no HTTP client is supplied.
const DefaultTimeout = 30 * time.Second

const maxBodyBytes = 1 << 20

// ErrUnauthenticated matches an APIError for a rejected credential.
var ErrUnauthenticated = errors.New("agent api: credential rejected")

// APIError is a non-2xx answer from the agent service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status code %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status code %d: %s", e.StatusCode, e.Message)
}

// ErrorDetail returns the message supplied by the service.
func (e *APIError) ErrorDetail() string {
	return e.Message
}

// Is reports whether target is ErrUnauthenticated and the status means the
// credential must be renewed. 401 and 403 are treated alike.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthenticated && unauthenticated(e.StatusCode)
}

func unauthenticated(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithCredentials sets the bearer token source.
func WithCredentials(p auth.CredentialProvider) Option {
	return func(c *Client) {
		c.creds = p
	}
}

// WithUnauthenticatedHandler registers fn to run after the service rejects
// the credential and the credential has been invalidated.
func WithUnauthenticatedHandler(fn func(ctx context.Context)) Option {
	return func(c *Client) {
		c.onUnauthenticated = fn
	}
}

// WithLogger sets the client logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Client talks to the agent service rooted at baseURL (for example
// http://localhost:8081/api). It implements chat.Transport.
type Client struct {
	baseURL           string
	http              *http.Client
	creds             auth.CredentialProvider
	onUnauthenticated func(ctx context.Context)
	logger            *logger.Logger
}

var _ chat.Transport = (*Client)(nil)

// New creates a client. A non-positive timeout selects DefaultTimeout.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.Global(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chat posts req to endpoint. Any error means no usable response was
// obtained. A non-2xx answer whose body is a chat response flagged
// unsuccessful is returned as a response, not an error.
func (c *Client) Chat(ctx context.Context, endpoint string, req chat.Request) (*chat.Response, error) {
	status, body, err := c.do(ctx, http.MethodPost, endpoint, req, true)
	if err != nil {
		return nil, err
	}

	if status >= 200 && status < 300 {
		success, err := successFlag(body)
		if err != nil {
			return nil, &chat.TransportError{Err: fmt.Errorf("decode chat response: %w", err)}
		}
		if success == nil {
			return nil, &chat.TransportError{Err: errors.New("decode chat response: no success flag")}
		}
		var resp chat.Response
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, &chat.TransportError{Err: fmt.Errorf("decode chat response: %w", err)}
		}
		return &resp, nil
	}

	if !unauthenticated(status) {
		if success, err := successFlag(body); err == nil && success != nil && !*success {
			var resp chat.Response
			if err := json.Unmarshal(body, &resp); err == nil {
				return &resp, nil
			}
		}
	}
	return nil, c.apiError(ctx, status, body)
}

// successFlag reads the success field of a chat response body. It is nil
// when the body is null or has no such field.
func successFlag(body []byte) (*bool, error) {
	var probe *struct {
		Success *bool `json:"success"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, err
	}
	if probe == nil {
		return nil, nil
	}
	return probe.Success, nil
}

// Login exchanges email and password for a token.
func (c *Client) Login(ctx context.Context, email, password string) (*model.LoginResponse, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/auth/login", model.LoginRequest{Email: email, Password: password}, false)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &APIError{StatusCode: status, Message: errorMessage(body)}
	}
	var out model.LoginResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	return &out, nil
}

// Me returns the user the current credential belongs to.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/auth/me", nil, true)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.apiError(ctx, status, body)
	}
	var u model.User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}

// Logout tells the service the token is no longer used and invalidates it
// locally regardless of the answer.
func (c *Client) Logout(ctx context.Context) error {
	status, body, err := c.do(ctx, http.MethodPost, "/auth/logout", nil, true)
	if c.creds != nil {
		if invErr := c.creds.Invalidate(ctx); invErr != nil {
			c.logger.Warn("failed to invalidate credential", zap.Error(invErr))
		}
	}
	if err != nil {
		return err
	}
	if status >= 300 {
		return &APIError{StatusCode: status, Message: errorMessage(body)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, authed bool) (int, []byte, error) {
	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, &chat.TransportError{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed && c.creds != nil {
		token, err := c.creds.Token(ctx)
		switch {
		case err == nil:
			req.Header.Set("Authorization", "Bearer "+token)
		case !errors.Is(err, auth.ErrNoCredential):
			return 0, nil, &chat.TransportError{Err: fmt.Errorf("read credential: %w", err)}
		}
	}
	if id := middleware.GetCorrelationID(ctx); id != "" {
		req.Header.Set(middleware.CorrelationIDHeader, id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &chat.TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, &chat.TransportError{Err: fmt.Errorf("read response: %w", err)}
	}
	return resp.StatusCode, body, nil
}

func (c *Client) apiError(ctx context.Context, status int, body []byte) error {
	apiErr := &APIError{StatusCode: status, Message: errorMessage(body)}
	if !unauthenticated(status) {
		return apiErr
	}

	c.logger.Info("agent service rejected credential", zap.Int("status", status))
	if c.creds != nil {
		if err := c.creds.Invalidate(ctx); err != nil {
			c.logger.Warn("failed to invalidate credential", zap.Error(err))
		}
	}
	if c.onUnauthenticated != nil {
		c.onUnauthenticated(ctx)
	}
	return apiErr
}

// errorMessage extracts {"message": ...} from an error body. The agent
// endpoints also answer with {"error": ...}, which is accepted too.
func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}
