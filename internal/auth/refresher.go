package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/actual-software/chat-bridge/internal/constants"
	"github.com/actual-software/chat-bridge/internal/tracing"
	"github.com/actual-software/chat-bridge/pkg/common/logging"
	common "github.com/actual-software/chat-bridge/pkg/common/tracing"
)

const refreshPath = "/auth/jwt/"

var (
	// ErrRefreshRejected is returned when the server answers but declines to issue a token.
	ErrRefreshRejected = errors.New("credential refresh rejected")
	// ErrResponseTooLarge is returned when the token endpoint sends an oversized body.
	ErrResponseTooLarge = errors.New("refresh response too large")
)

// refreshResponse is the envelope returned by the token endpoint.
type refreshResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Access string `json:"access"`
	} `json:"data"`
}

// RefresherConfig configures an HTTPRefresher.
type RefresherConfig struct {
	APIURL         string
	RefreshCookie  *http.Cookie
	RequestTimeout time.Duration
}

// HTTPRefresher obtains a new access token from GET <api>/auth/jwt/. The refresh
// token travels as a cookie, mirroring how a browser session renews its access token.
type HTTPRefresher struct {
	endpoint   *url.URL
	httpClient *http.Client
	bearer     func() string
	tracer     *tracing.Tracer
	logger     *zap.Logger
}

// RefresherOption customizes an HTTPRefresher.
type RefresherOption func(*HTTPRefresher)

// WithHTTPClient replaces the HTTP client. The client's jar, if any, is kept.
func WithHTTPClient(client *http.Client) RefresherOption {
	return func(r *HTTPRefresher) {
		if client.Jar == nil {
			client.Jar = r.httpClient.Jar
		}

		r.httpClient = client
	}
}

// WithBearer sends the current access token as an Authorization header.
func WithBearer(current func() string) RefresherOption {
	return func(r *HTTPRefresher) {
		r.bearer = current
	}
}

// WithTracer wraps each refresh in a span.
func WithTracer(t *tracing.Tracer) RefresherOption {
	return func(r *HTTPRefresher) {
		r.tracer = t
	}
}

// NewHTTPRefresher creates a refresher for the given API base URL.
func NewHTTPRefresher(cfg RefresherConfig, logger *zap.Logger, opts ...RefresherOption) (*HTTPRefresher, error) {
	if cfg.APIURL == "" {
		return nil, errors.New("api url not configured")
	}

	endpoint, err := url.Parse(strings.TrimRight(cfg.APIURL, "/") + refreshPath)
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}

	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("invalid api url scheme %q", endpoint.Scheme)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	if cfg.RefreshCookie != nil && cfg.RefreshCookie.Value != "" {
		jar.SetCookies(endpoint, []*http.Cookie{cfg.RefreshCookie})
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = constants.RefreshRequestTimeout
	}

	r := &HTTPRefresher{
		endpoint:   endpoint,
		httpClient: &http.Client{Jar: jar, Timeout: timeout},
		logger:     logger.With(zap.String(logging.FieldComponent, "refresher")),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.httpClient = r.tracer.HTTPClient(r.httpClient)

	return r, nil
}

// Endpoint returns the token endpoint URL.
func (r *HTTPRefresher) Endpoint() string {
	return r.endpoint.String()
}

// Refresh requests a new access token.
func (r *HTTPRefresher) Refresh(ctx context.Context) (Credential, error) {
	ctx, span := r.tracer.StartSpan(ctx, "auth.refresh")
	defer span.End()

	cred, status, err := r.refresh(ctx)

	span.SetAttributes(common.AuthenticationAttributes(err == nil, status)...)

	if err != nil {
		r.tracer.RecordError(ctx, err)

		return Credential{}, err
	}

	r.logger.Info("Refreshed access credential", zap.Time(logging.FieldExpiresAt, cred.ExpiresAt))

	return cred, nil
}

func (r *HTTPRefresher) refresh(ctx context.Context) (Credential, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint.String(), nil)
	if err != nil {
		return Credential{}, 0, fmt.Errorf("failed to create refresh request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if r.bearer != nil {
		if token := r.bearer(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Credential{}, 0, fmt.Errorf("refresh request failed: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			r.logger.Debug("Failed to close response body", zap.Error(err))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxRefreshResponseSize+1))
	if err != nil {
		return Credential{}, resp.StatusCode, fmt.Errorf("failed to read refresh response: %w", err)
	}

	if len(body) > constants.MaxRefreshResponseSize {
		return Credential{}, resp.StatusCode, fmt.Errorf("%w: more than %d bytes",
			ErrResponseTooLarge, constants.MaxRefreshResponseSize)
	}

	if resp.StatusCode != http.StatusOK {
		return Credential{}, resp.StatusCode,
			fmt.Errorf("%w: status %d: %s", ErrRefreshRejected, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	cred, err := parseRefreshResponse(body)

	return cred, resp.StatusCode, err
}

func parseRefreshResponse(body []byte) (Credential, error) {
	var payload refreshResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return Credential{}, fmt.Errorf("failed to parse refresh response: %w", err)
	}

	if !payload.Status {
		msg := payload.Message
		if msg == "" {
			msg = "unknown error"
		}

		return Credential{}, fmt.Errorf("%w: %s", ErrRefreshRejected, msg)
	}

	if payload.Data.Access == "" {
		return Credential{}, fmt.Errorf("%w: response carries no access token", ErrRefreshRejected)
	}

	return NewCredential(payload.Data.Access), nil
}
