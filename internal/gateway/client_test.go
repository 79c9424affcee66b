package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdeck/deck/internal/config"
)

// authServer answers /api/things with 401 until the access cookie equals
// want, and /api/auth/refresh according to refreshOK.
type authServer struct {
	calls      atomic.Int32
	refreshes  atomic.Int32
	refreshOK  bool
	want       string
	alwaysDeny bool
}

func (s *authServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/things", func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		ck, err := r.Cookie(AccessCookie)
		if s.alwaysDeny || err != nil || ck.Value != s.want {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Not authenticated"}`))
			return
		}
		_, _ = w.Write([]byte(`{"name":"widget"}`))
	})
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		s.refreshes.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("refresh method = %s, want POST", r.Method)
		}
		if !s.refreshOK {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Invalid refresh token"}`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: AccessCookie, Value: s.want, Path: "/"})
		_, _ = w.Write([]byte(`{"message":"refreshed"}`))
	})
	mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Not authenticated"}`))
	})
	return mux
}

type thing struct {
	Name string `json:"name"`
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	c, err := New(srv.URL+"/api", opts...)
	require.NoError(t, err)
	return c
}

func TestDoRefreshesOnceThenRetries(t *testing.T) {
	s := &authServer{refreshOK: true, want: "fresh"}
	srv := httptest.NewServer(s.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv)
	var out thing
	res, err := c.Do(context.Background(), http.MethodGet, "/things", nil, &out)
	require.NoError(t, err)
	assert.Equal(t, OK, res)
	assert.Equal(t, "widget", out.Name)
	assert.EqualValues(t, 2, s.calls.Load(), "original request + one retry")
	assert.EqualValues(t, 1, s.refreshes.Load())
}

func TestDoFailedRefreshSurfaces401(t *testing.T) {
	s := &authServer{refreshOK: false, want: "fresh"}
	srv := httptest.NewServer(s.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Do(context.Background(), http.MethodGet, "/things", nil, nil)
	require.Error(t, err)
	assert.True(t, IsAuth(err), "err = %v", err)
	f, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, "Not authenticated", f.Message)
	assert.EqualValues(t, 1, s.calls.Load(), "no retry after failed refresh")
	assert.EqualValues(t, 1, s.refreshes.Load())
}

func TestDoSecond401IsFinal(t *testing.T) {
	s := &authServer{refreshOK: true, want: "fresh", alwaysDeny: true}
	srv := httptest.NewServer(s.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Do(context.Background(), http.MethodGet, "/things", nil, nil)
	require.Error(t, err)
	assert.True(t, IsAuth(err))
	assert.EqualValues(t, 2, s.calls.Load())
	assert.EqualValues(t, 1, s.refreshes.Load(), "exactly one refresh per request")
}

func TestDoIdentityCheckNeverRefreshes(t *testing.T) {
	s := &authServer{refreshOK: true, want: "fresh"}
	srv := httptest.NewServer(s.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Me(context.Background())
	require.Error(t, err)
	assert.True(t, IsAuth(err))
	assert.EqualValues(t, 1, s.calls.Load())
	assert.EqualValues(t, 0, s.refreshes.Load())
}

func TestDoNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	out := thing{Name: "untouched"}
	res, err := c.Do(context.Background(), http.MethodDelete, "/issues/1", nil, &out)
	require.NoError(t, err)
	assert.Equal(t, NoContent, res)
	assert.Equal(t, "untouched", out.Name)
}

func TestDoErrorBodies(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantMsg  string
		wantCode string
	}{
		{"detail string", 404, `{"detail":"Issue not found"}`, "Issue not found", ""},
		{"validation array", 422, `{"detail":[{"loc":["body","title"],"msg":"field required","type":"missing"}]}`, "field required", ""},
		{"detail object", 409, `{"detail":{"message":"already running","code":"job_active"}}`, "already running", "job_active"},
		{"not json", 502, `<html>bad gateway</html>`, FallbackMessage, ""},
		{"empty body", 500, ``, FallbackMessage, ""},
		{"blank detail", 400, `{"detail":""}`, FallbackMessage, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := newTestClient(t, srv)
			_, err := c.Do(context.Background(), http.MethodGet, "/x", nil, nil)
			f, ok := AsFailure(err)
			require.True(t, ok, "err = %v", err)
			assert.Equal(t, tt.status, f.StatusCode)
			assert.Equal(t, tt.wantMsg, f.Message)
			assert.Equal(t, tt.wantCode, f.Code)
			assert.EqualValues(t, 1, calls.Load(), "non-401 failures are not retried")
		})
	}
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsValidation(&Failure{StatusCode: 422}))
	assert.True(t, IsValidation(&Failure{StatusCode: 404}))
	assert.False(t, IsValidation(&Failure{StatusCode: 401}))
	assert.False(t, IsValidation(&Failure{StatusCode: 500}))
	assert.True(t, IsNotFound(&Failure{StatusCode: 404}))
	assert.False(t, IsTransport(&Failure{StatusCode: 500}))
}

func TestDoTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url + "/api")
	require.NoError(t, err)
	_, err = c.Do(context.Background(), http.MethodGet, "/issues", nil, nil)
	require.Error(t, err)
	assert.True(t, IsTransport(err), "err = %v", err)
	assert.False(t, IsAuth(err))
}

func TestDoSendsHeadersAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get(RequestIDHeader))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in thing
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(thing{Name: in.Name + "!"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	var out thing
	_, err := c.Do(context.Background(), http.MethodPost, "/echo", thing{Name: "hi"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "hi!", out.Name)
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com")
	assert.Error(t, err)
	_, err = New("://nope")
	assert.Error(t, err)
}

func TestSessionSeedAndPersist(t *testing.T) {
	s := &authServer{refreshOK: true, want: "fresh"}
	srv := httptest.NewServer(s.handler(t))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, config.SaveSession(path, &config.Session{
		APIURL:       srv.URL + "/api",
		AccessToken:  "stale",
		RefreshToken: "r1",
	}))

	c := newTestClient(t, srv, WithSessionFile(path))
	access, refresh := c.Tokens()
	assert.Equal(t, "stale", access)
	assert.Equal(t, "r1", refresh)

	_, err := c.Do(context.Background(), http.MethodGet, "/things", nil, nil)
	require.NoError(t, err)

	saved, err := config.LoadSession(path)
	require.NoError(t, err)
	assert.Equal(t, "fresh", saved.AccessToken)
	assert.Equal(t, "r1", saved.RefreshToken)
}

func TestSessionForOtherBackendIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, config.SaveSession(path, &config.Session{
		APIURL:      "http://elsewhere/api",
		AccessToken: "a",
	}))
	c, err := New("http://localhost:1/api", WithSessionFile(path))
	require.NoError(t, err)
	access, _ := c.Tokens()
	assert.Empty(t, access)
}

func TestLogoutClearsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "session.yaml")
	c := newTestClient(t, srv, WithSessionFile(path))
	require.NoError(t, c.SetTokens("a", "r"))

	require.NoError(t, c.Logout(context.Background()))
	access, refresh := c.Tokens()
	assert.Empty(t, access)
	assert.Empty(t, refresh)

	saved, err := config.LoadSession(path)
	require.NoError(t, err)
	assert.True(t, saved.Empty())
}

// rotatingServer issues single-use refresh tokens. Its refresh endpoint
// holds until all callers have been denied once, so every caller wants a
// refresh at the same time.
type rotatingServer struct {
	callers int

	mu        sync.Mutex
	gen       int
	refreshes int
	denied    int
	allDenied chan struct{}
}

func (s *rotatingServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/things", func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie(AccessCookie)
		s.mu.Lock()
		ok := err == nil && s.gen > 0 && ck.Value == fmt.Sprintf("at-%d", s.gen)
		if !ok {
			s.denied++
			if s.denied == s.callers {
				close(s.allDenied)
			}
		}
		s.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Not authenticated"}`))
			return
		}
		_, _ = w.Write([]byte(`{"name":"widget"}`))
	})
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-s.allDenied:
		case <-time.After(2 * time.Second):
		}
		ck, err := r.Cookie(RefreshCookie)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.refreshes++
		if err != nil || ck.Value != fmt.Sprintf("rt-%d", s.gen) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Refresh token already used"}`))
			return
		}
		s.gen++
		http.SetCookie(w, &http.Cookie{Name: AccessCookie, Value: fmt.Sprintf("at-%d", s.gen), Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Value: fmt.Sprintf("rt-%d", s.gen), Path: "/"})
		_, _ = w.Write([]byte(`{"message":"refreshed"}`))
	})
	return mux
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	s := &rotatingServer{callers: 4, allDenied: make(chan struct{})}
	srv := httptest.NewServer(s.handler())
	defer srv.Close()

	c := newTestClient(t, srv)
	require.NoError(t, c.SetTokens("at-stale", "rt-0"))

	errs := make([]error, s.callers)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var out thing
			_, errs[i] = c.Do(context.Background(), http.MethodGet, "/things", nil, &out)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, 1, s.refreshes, "one exchange for all callers")
	access, refresh := c.Tokens()
	assert.Equal(t, "at-1", access)
	assert.Equal(t, "rt-1", refresh)
}
