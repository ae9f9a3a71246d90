package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/narrate/internal/client/csrf"
	"github.com/dmitrijs2005/narrate/internal/client/models"
	"github.com/dmitrijs2005/narrate/internal/common"
	"github.com/dmitrijs2005/narrate/internal/logging"
	"github.com/google/go-querystring/query"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	pathCSRFToken     = "/csrf-token"
	pathSignIn        = "/api/v1/user/sign-in"
	pathSession       = "/api/v1/user/session"
	pathSignUp        = "/api/v1/user/sign-up"
	pathCheckUsername = "/api/v1/user/check-username/"
	pathVerifyOTP     = "/api/v1/user/verify-otp"
	pathRefreshOTP    = "/api/v1/user/refresh-otp"
	pathRefreshToken  = "/api/v1/user/refresh-token"
	pathSignOut       = "/api/v1/user/sign-out"
	pathProfileImage  = "/api/v1/user/profile-image"
	pathProfileInfo   = "/api/v1/user/profile-info"
	pathSearch        = "/api/v1/user/search"

	profileImageField = "profileImage"

	// DefaultTimeout bounds every request when no other timeout is configured.
	DefaultTimeout = 15 * time.Second
)

// HTTPClient implements Client over the Narrate REST API. Cookies are kept
// in a jar so every call is credentialed; mutating calls carry the CSRF
// token from the injected store and fetch one first when none is known.
type HTTPClient struct {
	baseURL     string
	http        *http.Client
	csrf        *csrf.Store
	logger      logging.Logger
	autoRefresh bool
	requestID   func() string

	csrfGroup singleflight.Group
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client. Its Jar should be set
// for cookie-based sessions to work.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) { c.http.Timeout = d }
}

// WithCookieJar sets the cookie jar used for credentialed requests.
func WithCookieJar(jar http.CookieJar) Option {
	return func(c *HTTPClient) { c.http.Jar = jar }
}

// WithCSRFStore injects the process-wide CSRF token store.
func WithCSRFStore(s *csrf.Store) Option {
	return func(c *HTTPClient) { c.csrf = s }
}

func WithLogger(l logging.Logger) Option {
	return func(c *HTTPClient) { c.logger = l }
}

// WithAutoRefresh makes the client call the refresh-token endpoint once and
// replay the request when the backend reports an expired access token.
func WithAutoRefresh(enabled bool) Option {
	return func(c *HTTPClient) { c.autoRefresh = enabled }
}

// NewHTTPClient builds a client for the backend at baseURL.
func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	c := &HTTPClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: DefaultTimeout, Jar: jar},
		csrf:      csrf.NewStore(),
		logger:    logging.Nop(),
		requestID: uuid.NewString,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// CSRF returns the token store used by the client.
func (c *HTTPClient) CSRF() *csrf.Store {
	return c.csrf
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// call describes one API request. body produces a fresh payload for every
// attempt so the request can be replayed.
type call struct {
	method      string
	path        string
	query       url.Values
	expected    int
	contentType string
	body        func() ([]byte, error)
}

func (r call) mutating() bool {
	switch r.method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func jsonBody(v any) func() ([]byte, error) {
	return func() ([]byte, error) { return json.Marshal(v) }
}

// do executes r and decodes a successful response into out (may be nil).
//
// A CSRF rejection triggers one token re-fetch and one replay; with auto
// refresh enabled an expired access token triggers one token refresh and one
// replay. Nothing else is retried here.
func (c *HTTPClient) do(ctx context.Context, r call, out any) error {
	if r.mutating() {
		if _, ok := c.csrf.Get(); !ok {
			if err := c.refreshCSRF(ctx); err != nil {
				return err
			}
		}
	}

	err := c.send(ctx, r, out)

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return err
	}

	switch {
	case r.mutating() && reqErr.csrfRejected():
		c.logger.Info(ctx, "csrf token rejected, fetching a new one", "path", r.path)
		if ferr := c.refreshCSRF(ctx); ferr != nil {
			return ferr
		}
		return c.send(ctx, r, out)

	case c.autoRefresh && r.path != pathRefreshToken &&
		reqErr.Status == http.StatusUnauthorized && reqErr.Message == common.ErrTokenExpired.Error():
		c.logger.Info(ctx, "access token expired, refreshing", "path", r.path)
		if rerr := c.RefreshTokens(ctx); rerr != nil {
			return err
		}
		return c.send(ctx, r, out)
	}

	return err
}

func (c *HTTPClient) send(ctx context.Context, r call, out any) error {
	var payload io.Reader
	if r.body != nil {
		b, err := r.body()
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", r.method, r.path, err)
		}
		payload = bytes.NewReader(b)
	}

	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, payload)
	if err != nil {
		return err
	}

	reqID := c.requestID()
	req.Header.Set(common.RequestIDHeaderName, reqID)
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		ct := r.contentType
		if ct == "" {
			ct = "application/json"
		}
		req.Header.Set("Content-Type", ct)
	}
	if r.mutating() {
		if token, ok := c.csrf.Get(); ok {
			req.Header.Set(common.CSRFHeaderName, token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s %s: %w", r.method, r.path, ctxErr)
		}
		c.logger.Warn(ctx, "request failed", "kind", "transport",
			"method", r.method, "path", r.path, "request_id", reqID, "error", err)
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, r.method, r.path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != r.expected {
		reqErr := &RequestError{
			Method:  r.method,
			Path:    r.path,
			Status:  resp.StatusCode,
			Message: readMessage(resp),
		}
		c.logger.Warn(ctx, "request failed", "kind", "request",
			"method", r.method, "path", r.path, "request_id", reqID,
			"status", resp.StatusCode, "message", reqErr.Message)
		return reqErr
	}

	c.logger.Debug(ctx, "request done", "method", r.method, "path", r.path,
		"request_id", reqID, "status", resp.StatusCode)

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s: %w", r.method, r.path, err)
	}
	return nil
}

// readMessage extracts the "message" field of an error body, falling back to
// the status text when the body is not JSON or has no message.
func readMessage(resp *http.Response) string {
	var body struct {
		Message string `json:"message"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return http.StatusText(resp.StatusCode)
}

// refreshCSRF fetches a token and stores it. Concurrent callers share a
// single request, which is detached from any one caller's cancellation and
// bounded by the client timeout; each caller stops waiting when its own ctx
// ends.
func (c *HTTPClient) refreshCSRF(ctx context.Context) error {
	ch := c.csrfGroup.DoChan("csrf", func() (any, error) {
		return c.FetchCSRFToken(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return fmt.Errorf("csrf token: %w", res.Err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("csrf token: %w", ctx.Err())
	}
}

// FetchCSRFToken requests a token and stores it in the CSRF store.
func (c *HTTPClient) FetchCSRFToken(ctx context.Context) (string, error) {
	var out models.CSRFToken
	if err := c.send(ctx, call{method: http.MethodGet, path: pathCSRFToken, expected: http.StatusOK}, &out); err != nil {
		return "", err
	}
	if out.CSRFToken == "" {
		return "", ErrEmptyToken
	}
	c.csrf.Set(out.CSRFToken)
	return out.CSRFToken, nil
}

func (c *HTTPClient) RefreshTokens(ctx context.Context) error {
	return c.send(ctx, call{method: http.MethodGet, path: pathRefreshToken, expected: http.StatusOK}, nil)
}

func (c *HTTPClient) SignIn(ctx context.Context, email, password string) (*models.User, error) {
	var out models.Envelope[*models.User]
	err := c.do(ctx, call{
		method:   http.MethodPost,
		path:     pathSignIn,
		expected: http.StatusOK,
		body:     jsonBody(models.SignInData{Email: email, Password: password}),
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *HTTPClient) SignUp(ctx context.Context, data models.SignUpData) (*models.User, error) {
	var out models.Envelope[*models.User]
	err := c.do(ctx, call{
		method:   http.MethodPost,
		path:     pathSignUp,
		expected: http.StatusCreated,
		body:     jsonBody(data),
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

// SessionCheck returns the current user, or nil when the backend answered
// 200 without one.
func (c *HTTPClient) SessionCheck(ctx context.Context) (*models.User, error) {
	var out models.Envelope[*models.User]
	if err := c.do(ctx, call{method: http.MethodGet, path: pathSession, expected: http.StatusOK}, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// CheckUsername reports whether username is already taken.
func (c *HTTPClient) CheckUsername(ctx context.Context, username string) (bool, error) {
	var out models.Envelope[models.UsernameCheck]
	err := c.do(ctx, call{
		method:   http.MethodGet,
		path:     pathCheckUsername + url.PathEscape(username),
		expected: http.StatusOK,
	}, &out)
	if err != nil {
		return false, err
	}
	return out.Data.Exists, nil
}

func (c *HTTPClient) VerifyOTP(ctx context.Context, email, otp string) (*models.User, error) {
	var out models.Envelope[*models.User]
	err := c.do(ctx, call{
		method:   http.MethodPost,
		path:     pathVerifyOTP,
		expected: http.StatusOK,
		body:     jsonBody(models.VerifyOTPData{Email: email, OTP: otp}),
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *HTTPClient) ResendOTP(ctx context.Context, email string) error {
	return c.do(ctx, call{
		method:   http.MethodPatch,
		path:     pathRefreshOTP,
		expected: http.StatusOK,
		body:     jsonBody(models.EmailData{Email: email}),
	}, nil)
}

func (c *HTTPClient) SignOut(ctx context.Context) error {
	return c.do(ctx, call{method: http.MethodDelete, path: pathSignOut, expected: http.StatusOK}, nil)
}

func (c *HTTPClient) UpdateProfile(ctx context.Context, data models.UpdateUserData) (*models.User, error) {
	var out models.Envelope[*models.User]
	err := c.do(ctx, call{
		method:   http.MethodPatch,
		path:     pathProfileInfo,
		expected: http.StatusOK,
		body:     jsonBody(data),
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

// UploadProfileImage sends content as the profileImage multipart field and
// returns the stored image URL.
func (c *HTTPClient) UploadProfileImage(ctx context.Context, filename string, content io.Reader) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	boundary := multipart.NewWriter(io.Discard).Boundary()
	body := func() ([]byte, error) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		if err := w.SetBoundary(boundary); err != nil {
			return nil, err
		}

		ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
		if ct == "" {
			ct = "application/octet-stream"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, profileImageField, filepath.Base(filename)))
		h.Set("Content-Type", ct)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	var out models.Envelope[models.ProfileImage]
	err = c.do(ctx, call{
		method:      http.MethodPatch,
		path:        pathProfileImage,
		expected:    http.StatusCreated,
		contentType: "multipart/form-data; boundary=" + boundary,
		body:        body,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Data.Image, nil
}

func (c *HTTPClient) SearchUsers(ctx context.Context, q models.SearchQuery) (*models.SearchResult, error) {
	values, err := query.Values(q)
	if err != nil {
		return nil, fmt.Errorf("encode search query: %w", err)
	}

	var out models.Envelope[models.SearchResult]
	err = c.do(ctx, call{
		method:   http.MethodGet,
		path:     pathSearch,
		query:    values,
		expected: http.StatusOK,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Data, nil
}
