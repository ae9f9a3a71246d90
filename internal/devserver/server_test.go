package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/narrate/internal/client/client"
	"github.com/dmitrijs2005/narrate/internal/client/csrf"
	"github.com/dmitrijs2005/narrate/internal/client/models"
	"github.com/dmitrijs2005/narrate/internal/devserver/config"
	"github.com/dmitrijs2005/narrate/internal/devserver/refreshtokens"
	"github.com/dmitrijs2005/narrate/internal/devserver/users"
	"github.com/dmitrijs2005/narrate/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	ts   *httptest.Server
	svc  *users.Service
	repo *users.MemoryRepository
	clk  *clock
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()

	clk := &clock{now: time.Now()}
	repo := users.NewMemoryRepository()
	svc := users.NewService(repo, refreshtokens.NewMemoryRepository(), cfg, logging.Nop(), users.WithClock(clk.Now))

	ts := httptest.NewServer(newServer(cfg, logging.Nop(), svc).Routes())
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, svc: svc, repo: repo, clk: clk}
}

func (e *testEnv) client(t *testing.T, opts ...client.Option) *client.HTTPClient {
	t.Helper()
	c, err := client.NewHTTPClient(e.ts.URL, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (e *testEnv) otp(t *testing.T, email string) string {
	t.Helper()
	u, err := e.repo.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	return u.OTP
}

// seedUser registers and verifies an account directly through the service.
func (e *testEnv) seedUser(t *testing.T, username string) models.SignInData {
	t.Helper()
	ctx := context.Background()
	creds := models.SignInData{Email: username + "@example.com", Password: "password123"}

	_, err := e.svc.SignUp(ctx, users.SignUpInput{
		Email:     creds.Email,
		Password:  creds.Password,
		FirstName: "First",
		LastName:  "Last",
		Username:  username,
	})
	require.NoError(t, err)
	_, _, err = e.svc.VerifyOTP(ctx, creds.Email, e.otp(t, creds.Email))
	require.NoError(t, err)
	return creds
}

func requestError(t *testing.T, err error) *client.RequestError {
	t.Helper()
	var re *client.RequestError
	require.True(t, errors.As(err, &re), "want RequestError, got %v", err)
	return re
}

func TestE2E_SignUpVerifyAndSession(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	c := env.client(t)

	exists, err := c.CheckUsername(ctx, "karan")
	require.NoError(t, err)
	assert.False(t, exists)

	signup := models.SignUpData{
		Email:     "karan@example.com",
		Password:  "password123",
		FirstName: "Karan",
		LastName:  "Kumar",
		Username:  "karan",
	}
	u, err := c.SignUp(ctx, signup)
	require.NoError(t, err)
	assert.Equal(t, "karan", u.Username)

	exists, err = c.CheckUsername(ctx, "Karan")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = c.SignUp(ctx, signup)
	assert.Equal(t, http.StatusConflict, requestError(t, err).Status)

	_, err = c.SignIn(ctx, signup.Email, signup.Password)
	re := requestError(t, err)
	assert.Equal(t, http.StatusForbidden, re.Status)
	assert.Equal(t, "account not verified", re.Message)

	_, err = c.SessionCheck(ctx)
	assert.ErrorIs(t, err, client.ErrUnauthorized)

	code := env.otp(t, signup.Email)
	wrong := fmt.Sprintf("%d%s", (code[0]-'0'+1)%10, code[1:])
	_, err = c.VerifyOTP(ctx, signup.Email, wrong)
	re = requestError(t, err)
	assert.Equal(t, http.StatusBadRequest, re.Status)
	assert.Equal(t, "invalid otp", re.Message)

	verified, err := c.VerifyOTP(ctx, signup.Email, code)
	require.NoError(t, err)

	me, err := c.SessionCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, verified.ID, me.ID)
	assert.Equal(t, "Karan Kumar", me.DisplayName())
}

func TestE2E_SignUpValidation(t *testing.T) {
	ctx := context.Background()
	c := newEnv(t).client(t)

	_, err := c.SignUp(ctx, models.SignUpData{Email: "not-an-email", Password: "password123", FirstName: "Karan", LastName: "Kumar", Username: "karan"})
	re := requestError(t, err)
	assert.Equal(t, http.StatusBadRequest, re.Status)
	assert.Equal(t, "invalid email", re.Message)

	_, err = c.SignUp(ctx, models.SignUpData{Email: "k@example.com", Password: "short", FirstName: "Karan", LastName: "Kumar", Username: "karan"})
	assert.Equal(t, "invalid password", requestError(t, err).Message)
}

func TestE2E_ResendOTP(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	c := env.client(t)

	_, err := c.SignUp(ctx, models.SignUpData{Email: "amy@example.com", Password: "password123", FirstName: "Amy", LastName: "Pond", Username: "amy"})
	require.NoError(t, err)
	first := env.otp(t, "amy@example.com")

	require.NoError(t, c.ResendOTP(ctx, "amy@example.com"))
	second := env.otp(t, "amy@example.com")

	_, err = c.VerifyOTP(ctx, "amy@example.com", second)
	require.NoError(t, err)
	if first != second {
		_, err = c.VerifyOTP(ctx, "amy@example.com", first)
		assert.Equal(t, "account already verified", requestError(t, err).Message)
	}

	err = c.ResendOTP(ctx, "nobody@example.com")
	assert.Equal(t, http.StatusNotFound, requestError(t, err).Status)
}

func TestE2E_SignInSignOut(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	creds := env.seedUser(t, "karan")
	c := env.client(t)

	_, err := c.SignIn(ctx, creds.Email, "wrong-password")
	re := requestError(t, err)
	assert.Equal(t, http.StatusUnauthorized, re.Status)
	assert.Equal(t, "invalid credentials", client.Message(err))

	u, err := c.SignIn(ctx, creds.Email, creds.Password)
	require.NoError(t, err)
	assert.Equal(t, "karan", u.Username)

	me, err := c.SessionCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, u.ID, me.ID)

	require.NoError(t, c.SignOut(ctx))

	_, err = c.SessionCheck(ctx)
	assert.ErrorIs(t, err, client.ErrUnauthorized)
	assert.ErrorIs(t, c.RefreshTokens(ctx), client.ErrUnauthorized)
}

func TestE2E_ExpiredAccessToken(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	creds := env.seedUser(t, "karan")

	plain := env.client(t)
	auto := env.client(t, client.WithAutoRefresh(true))
	for _, c := range []*client.HTTPClient{plain, auto} {
		_, err := c.SignIn(ctx, creds.Email, creds.Password)
		require.NoError(t, err)
	}

	env.clk.Advance(20 * time.Minute)

	_, err := plain.SessionCheck(ctx)
	re := requestError(t, err)
	assert.Equal(t, http.StatusUnauthorized, re.Status)
	assert.Equal(t, "token expired", re.Message)

	me, err := auto.SessionCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, "karan", me.Username)

	require.NoError(t, plain.RefreshTokens(ctx))
	_, err = plain.SessionCheck(ctx)
	require.NoError(t, err)
}

func TestE2E_CSRF(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	creds := env.seedUser(t, "karan")

	t.Run("missing token is rejected", func(t *testing.T) {
		resp, err := http.Post(env.ts.URL+"/api/v1/user/sign-in", "application/json",
			strings.NewReader(`{"email":"karan@example.com","password":"password123"}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		var body envelope
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "invalid csrf token", body.Message)
	})

	t.Run("stale token is replaced", func(t *testing.T) {
		store := csrf.NewStore()
		store.Set("stale")
		c := env.client(t, client.WithCSRFStore(store))

		_, err := c.SignIn(ctx, creds.Email, creds.Password)
		require.NoError(t, err)

		tok, ok := store.Get()
		require.True(t, ok)
		assert.NotEqual(t, "stale", tok)
	})

	t.Run("reads need no token", func(t *testing.T) {
		resp, err := http.Get(env.ts.URL + "/api/v1/user/check-username/karan")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestE2E_ProfileUpdateAndImage(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	creds := env.seedUser(t, "karan")
	env.seedUser(t, "taken")
	c := env.client(t)

	_, err := c.UpdateProfile(ctx, models.UpdateUserData{})
	assert.ErrorIs(t, err, client.ErrUnauthorized)

	_, err = c.SignIn(ctx, creds.Email, creds.Password)
	require.NoError(t, err)

	bio := "writes about Go"
	u, err := c.UpdateProfile(ctx, models.UpdateUserData{Bio: &bio})
	require.NoError(t, err)
	require.NotNil(t, u.Bio)
	assert.Equal(t, bio, *u.Bio)

	name := "taken"
	_, err = c.UpdateProfile(ctx, models.UpdateUserData{Username: &name})
	re := requestError(t, err)
	assert.Equal(t, http.StatusConflict, re.Status)
	assert.Equal(t, "user already exists", re.Message)

	_, err = c.UpdateProfile(ctx, models.UpdateUserData{})
	assert.Equal(t, "nothing to update", requestError(t, err).Message)

	url, err := c.UploadProfileImage(ctx, "avatar.png", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, env.ts.URL+"/images/"), url)

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, got)

	me, err := c.SessionCheck(ctx)
	require.NoError(t, err)
	require.NotNil(t, me.Image)
	assert.Equal(t, url, *me.Image)

	_, err = c.UploadProfileImage(ctx, "notes.png", strings.NewReader("plain text"))
	re = requestError(t, err)
	assert.Equal(t, http.StatusBadRequest, re.Status)
	assert.Equal(t, "profile image must be an image", re.Message)
}

func TestE2E_SearchUsers(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	for _, name := range []string{"amy", "amelia", "amir", "bob"} {
		env.seedUser(t, name)
	}
	c := env.client(t)

	var seen []string
	q := models.SearchQuery{Username: "am", PageSize: 2}
	for range 3 {
		res, err := c.SearchUsers(ctx, q)
		require.NoError(t, err)
		for _, u := range res.Users {
			seen = append(seen, u.Username)
		}
		if res.NextCursor == nil {
			break
		}
		q.Cursor = res.NextCursor
	}
	assert.ElementsMatch(t, []string{"amy", "amelia", "amir"}, seen)
	assert.Len(t, seen, 3)

	_, err := c.SearchUsers(ctx, models.SearchQuery{Username: " "})
	assert.Equal(t, "username is required", requestError(t, err).Message)

	_, err = c.SearchUsers(ctx, models.SearchQuery{Username: "am", Cursor: &models.Cursor{ID: "x", CreatedAt: "yesterday"}})
	assert.Equal(t, "invalid cursor", requestError(t, err).Message)
}

func TestRoutes_CORSPreflight(t *testing.T) {
	env := newEnv(t)

	req, err := http.NewRequest(http.MethodOptions, env.ts.URL+"/api/v1/user/profile-info", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	req.Header.Set("Access-Control-Request-Headers", "X-CSRF-Token")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestRoutes_UnknownImage(t *testing.T) {
	env := newEnv(t)

	resp, err := http.Get(env.ts.URL + "/images/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
