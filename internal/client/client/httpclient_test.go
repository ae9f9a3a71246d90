package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/narrate/internal/client/csrf"
	"github.com/dmitrijs2005/narrate/internal/client/models"
	"github.com/dmitrijs2005/narrate/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/*************
 * Fake backend
 *************/

type fakeBackend struct {
	mux        *http.ServeMux
	srv        *httptest.Server
	csrfCalls  atomic.Int32
	csrfTokens []string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{mux: http.NewServeMux(), csrfTokens: []string{"tok-1", "tok-2", "tok-3"}}
	fb.mux.HandleFunc("GET /csrf-token", func(w http.ResponseWriter, r *http.Request) {
		n := fb.csrfCalls.Add(1)
		writeJSON(w, http.StatusOK, map[string]string{"csrfToken": fb.csrfTokens[int(n-1)%len(fb.csrfTokens)]})
	})
	fb.srv = httptest.NewServer(fb.mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) client(t *testing.T, opts ...Option) *HTTPClient {
	t.Helper()
	c, err := NewHTTPClient(fb.srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func userEnvelope(u models.User) map[string]any {
	return map[string]any{"message": "ok", "data": u}
}

/*************
 * Tests
 *************/

func TestNewHTTPClient_RejectsBadURL(t *testing.T) {
	_, err := NewHTTPClient("ftp://example.org")
	require.Error(t, err)

	_, err = NewHTTPClient("://bad")
	require.Error(t, err)
}

func TestSignIn_SuccessSendsCSRFAndRequestID(t *testing.T) {
	fb := newFakeBackend(t)

	var gotCSRF, gotReqID, gotCT string
	var gotBody models.SignInData
	fb.mux.HandleFunc("POST /api/v1/user/sign-in", func(w http.ResponseWriter, r *http.Request) {
		gotCSRF = r.Header.Get(common.CSRFHeaderName)
		gotReqID = r.Header.Get(common.RequestIDHeaderName)
		gotCT = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeJSON(w, http.StatusOK, userEnvelope(models.User{ID: "u1", Username: "alice", Email: "a@b.com"}))
	})

	store := csrf.NewStore()
	c := fb.client(t, WithCSRFStore(store))

	u, err := c.SignIn(context.Background(), "a@b.com", "secret")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "alice", u.Username)

	assert.Equal(t, "tok-1", gotCSRF)
	assert.NotEmpty(t, gotReqID)
	assert.Equal(t, "application/json", gotCT)
	assert.Equal(t, models.SignInData{Email: "a@b.com", Password: "secret"}, gotBody)

	tok, ok := store.Get()
	assert.True(t, ok)
	assert.Equal(t, "tok-1", tok)
}

func TestSignIn_WrongCredentials(t *testing.T) {
	fb := newFakeBackend(t)
	fb.mux.HandleFunc("POST /api/v1/user/sign-in", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid credentials"})
	})

	_, err := fb.client(t).SignIn(context.Background(), "a@b.com", "bad")
	require.Error(t, err)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusUnauthorized, reqErr.Status)
	assert.Equal(t, "invalid credentials", reqErr.Message)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, "invalid credentials", Message(err))
}

func TestSignUp_UnexpectedSuccessCodeIsAnError(t *testing.T) {
	fb := newFakeBackend(t)
	fb.mux.HandleFunc("POST /api/v1/user/sign-up", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "created?"})
	})

	_, err := fb.client(t).SignUp(context.Background(), models.SignUpData{Email: "a@b.com"})

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusOK, reqErr.Status)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestSignUp_Created(t *testing.T) {
	fb := newFakeBackend(t)
	var got models.SignUpData
	fb.mux.HandleFunc("POST /api/v1/user/sign-up", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusCreated, userEnvelope(models.User{ID: "u1", Username: got.Username}))
	})

	data := models.SignUpData{Email: "a@b.com", Password: "password1", FirstName: "Ann", LastName: "Lee", Username: "annlee"}
	u, err := fb.client(t).SignUp(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, "annlee", u.Username)
	assert.Equal(t, data, got)
}

func TestMutatingRequests_FetchCSRFOnce(t *testing.T) {
	fb := newFakeBackend(t)
	fb.mux.HandleFunc("PATCH /api/v1/user/refresh-otp", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "sent"})
	})

	c := fb.client(t)
	require.NoError(t, c.ResendOTP(context.Background(), "a@b.com"))
	require.NoError(t, c.ResendOTP(context.Background(), "a@b.com"))

	assert.Equal(t, int32(1), fb.csrfCalls.Load())
}

func TestCSRFFetch_SurvivesFirstCallerCancel(t *testing.T) {
	var csrfCalls atomic.Int32
	started := make(chan struct{}, 1)
	gate := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /csrf-token", func(w http.ResponseWriter, r *http.Request) {
		csrfCalls.Add(1)
		started <- struct{}{}
		<-gate
		writeJSON(w, http.StatusOK, map[string]string{"csrfToken": "tok-1"})
	})
	mux.HandleFunc("DELETE /api/v1/user/sign-out", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(common.CSRFHeaderName) != "tok-1" {
			writeJSON(w, http.StatusForbidden, map[string]string{"message": "invalid csrf token"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "signed out"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	store := csrf.NewStore()
	c, err := NewHTTPClient(srv.URL, WithCSRFStore(store))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() { first <- c.SignOut(ctx) }()
	<-started

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	// the shared token fetch is still running for everyone else
	second := make(chan error, 1)
	go func() { second <- c.SignOut(context.Background()) }()
	close(gate)

	require.NoError(t, <-second)
	assert.Equal(t, int32(1), csrfCalls.Load())
	tok, ok := store.Get()
	assert.True(t, ok)
	assert.Equal(t, "tok-1", tok)
}

func TestCSRFRejection_RefetchesAndReplaysOnce(t *testing.T) {
	fb := newFakeBackend(t)
	var hits atomic.Int32
	fb.mux.HandleFunc("DELETE /api/v1/user/sign-out", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get(common.CSRFHeaderName) != "tok-2" {
			writeJSON(w, http.StatusForbidden, map[string]string{"message": "invalid csrf token"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "signed out"})
	})

	store := csrf.NewStore()
	c := fb.client(t, WithCSRFStore(store))

	require.NoError(t, c.SignOut(context.Background()))
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(2), fb.csrfCalls.Load())

	tok, _ := store.Get()
	assert.Equal(t, "tok-2", tok)
}

func TestCSRFRejection_DoesNotLoop(t *testing.T) {
	fb := newFakeBackend(t)
	var hits atomic.Int32
	fb.mux.HandleFunc("DELETE /api/v1/user/sign-out", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "invalid csrf token"})
	})

	err := fb.client(t).SignOut(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, http.StatusForbidden, err.(*RequestError).Status)
}

func TestForbiddenWithoutCSRFMessage_IsNotReplayed(t *testing.T) {
	fb := newFakeBackend(t)
	var hits atomic.Int32
	fb.mux.HandleFunc("PATCH /api/v1/user/profile-info", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "not allowed"})
	})

	bio := "x"
	_, err := fb.client(t).UpdateProfile(context.Background(), models.UpdateUserData{Bio: &bio})
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(1), hits.Load())
}

func TestSessionCheck_NoCSRFAndCookiesSent(t *testing.T) {
	fb := newFakeBackend(t)
	fb.mux.HandleFunc("POST /api/v1/user/sign-in", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: common.AccessTokenCookieName, Value: "jwt", Path: "/"})
		writeJSON(w, http.StatusOK, userEnvelope(models.User{ID: "u1"}))
	})
	var gotCookie, gotCSRF string
	fb.mux.HandleFunc("GET /api/v1/user/session", func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie(common.AccessTokenCookieName); err == nil {
			gotCookie = ck.Value
		}
		gotCSRF = r.Header.Get(common.CSRFHeaderName)
		writeJSON(w, http.StatusOK, userEnvelope(models.User{ID: "u1", Username: "alice"}))
	})

	c := fb.client(t)
	u, err := c.SessionCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, int32(0), fb.csrfCalls.Load())
	assert.Empty(t, gotCSRF)
	assert.Empty(t, gotCookie)

	_, err = c.SignIn(context.Background(), "a@b.com", "secret")
	require.NoError(t, err)
	_, err = c.SessionCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "jwt", gotCookie)
	assert.Empty(t, gotCSRF)
}

func TestSessionCheck_EmptyData(t *testing.T) {
	fb := newFakeBackend(t)
	fb.mux.HandleFunc("GET /api/v1/user/session", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"message": "no session"})
	})

	u, err := fb.client(t).SessionCheck(context.Background())
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestTransportError_IsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, err := NewHTTPClient(srv.URL)
	require.NoError(t, err)

	_, err = c.SessionCheck(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)

	var reqErr *RequestError
	assert.False(t, errors.As(err, &reqErr))
}

func TestTimeout_IsUnavailable(t *testing.T) {
	fb := newFakeBackend(t)
	fb.mux.HandleFunc("GET /api/v1/user/session", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})

	_, err := fb.client(t, WithTimeout(50*time.Millisecond)).SessionCheck(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestCanceledContext(t *testing.T) {
	fb := newFakeBackend(t)
	fb.mux.HandleFunc("GET /api/v1/user/session", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, userEnvelope(models.User{ID: "u1"}))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fb.client(t).SessionCheck(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestCheckUsername(t *testing.T) {
	fb := newFakeBackend(t)
	var gotPath string
	fb.mux.HandleFunc("GET /api/v1/user/check-username/{username}", func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.PathValue("username")
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]bool{"exists": gotPath == "taken"}})
	})

	c := fb.client(t)
	exists, err := c.CheckUsername(context.Background(), "taken")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = c.CheckUsername(context.Background(), "fresh name")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, "fresh name", gotPath)
}

func TestSearchUsers_EncodesQuery(t *testing.T) {
	fb := newFakeBackend(t)
	var got []string
	var keys [][]string
	fb.mux.HandleFunc("GET /api/v1/user/search", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		got = append(got, q.Get("username")+"|"+q.Get("pageSize")+"|"+q.Get("id")+"|"+q.Get("createdAt"))
		names := make([]string, 0, len(q))
		for k := range q {
			names = append(names, k)
		}
		sort.Strings(names)
		keys = append(keys, names)
		writeJSON(w, http.StatusOK, map[string]any{"data": models.SearchResult{
			Users:      []models.User{{ID: "u2", Username: "bob"}},
			NextCursor: &models.Cursor{ID: "u2", CreatedAt: "2025-04-21T10:00:00Z"},
		}})
	})

	c := fb.client(t)
	res, err := c.SearchUsers(context.Background(), models.SearchQuery{Username: "bo b"})
	require.NoError(t, err)
	require.Len(t, res.Users, 1)
	require.NotNil(t, res.NextCursor)

	_, err = c.SearchUsers(context.Background(), models.SearchQuery{Username: "bob", PageSize: 10, Cursor: res.NextCursor})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"bo b|||",
		"bob|10|u2|2025-04-21T10:00:00Z",
	}, got)
	// a first page sends only the username; no stray parameter for the nil cursor
	assert.Equal(t, [][]string{
		{"username"},
		{"createdAt", "id", "pageSize", "username"},
	}, keys)
}

func TestUploadProfileImage_Multipart(t *testing.T) {
	fb := newFakeBackend(t)
	var gotName, gotBody, gotCT, gotCSRF string
	fb.mux.HandleFunc("PATCH /api/v1/user/profile-image", func(w http.ResponseWriter, r *http.Request) {
		gotCSRF = r.Header.Get(common.CSRFHeaderName)
		f, hdr, err := r.FormFile("profileImage")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		gotName, gotBody, gotCT = hdr.Filename, string(b), hdr.Header.Get("Content-Type")
		writeJSON(w, http.StatusCreated, map[string]any{"data": map[string]string{"image": "https://cdn/avatar.png"}})
	})

	img, err := fb.client(t).UploadProfileImage(context.Background(), "/tmp/avatar.png", strings.NewReader("PNGDATA"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/avatar.png", img)
	assert.Equal(t, "avatar.png", gotName)
	assert.Equal(t, "PNGDATA", gotBody)
	assert.Equal(t, "image/png", gotCT)
	assert.Equal(t, "tok-1", gotCSRF)
}

func TestAutoRefresh_RefreshesOnceAndReplays(t *testing.T) {
	fb := newFakeBackend(t)
	var refreshed atomic.Bool
	var refreshCalls atomic.Int32
	fb.mux.HandleFunc("GET /api/v1/user/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		refreshed.Store(true)
		writeJSON(w, http.StatusOK, map[string]string{"message": "refreshed"})
	})
	fb.mux.HandleFunc("GET /api/v1/user/session", func(w http.ResponseWriter, r *http.Request) {
		if !refreshed.Load() {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": common.ErrTokenExpired.Error()})
			return
		}
		writeJSON(w, http.StatusOK, userEnvelope(models.User{ID: "u1"}))
	})

	u, err := fb.client(t, WithAutoRefresh(true)).SessionCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, int32(1), refreshCalls.Load())
}

func TestAutoRefresh_DisabledByDefault(t *testing.T) {
	fb := newFakeBackend(t)
	var refreshCalls atomic.Int32
	fb.mux.HandleFunc("GET /api/v1/user/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		writeJSON(w, http.StatusOK, nil)
	})
	fb.mux.HandleFunc("GET /api/v1/user/session", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": common.ErrTokenExpired.Error()})
	})

	_, err := fb.client(t).SessionCheck(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(0), refreshCalls.Load())
}

func TestRequestError_NonJSONBodyFallsBackToStatusText(t *testing.T) {
	fb := newFakeBackend(t)
	fb.mux.HandleFunc("GET /api/v1/user/session", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := fb.client(t).SessionCheck(context.Background())
	assert.Equal(t, "Internal Server Error", Message(err))
	assert.Equal(t, "", Message(errors.New("plain")))
}

func TestFetchCSRFToken_EmptyToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /csrf-token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := csrf.NewStore()
	c, err := NewHTTPClient(srv.URL, WithCSRFStore(store))
	require.NoError(t, err)

	_, err = c.FetchCSRFToken(context.Background())
	require.ErrorIs(t, err, ErrEmptyToken)
	_, ok := store.Get()
	assert.False(t, ok)
}
