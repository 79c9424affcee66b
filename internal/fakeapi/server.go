// Package fakeapi is an in-memory rendition of the task-board backend. It
// serves the same routes, error bodies and auth cookies as the real API and
// backs both the HTTP tests and `deck demo`.
package fakeapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/taskdeck/deck/internal/types"
)

// Prefix is the mount point of every route, matching the real backend.
const Prefix = "/api"

// Server is the fake backend. All methods are safe for concurrent use.
type Server struct {
	mu sync.Mutex

	issues  map[int64]*types.Issue
	nextID  int64
	labels  []types.Label
	nextLbl int64
	repos   []*types.ConnectedRepo
	queue   []*types.QueueItem
	nextQ   int64
	notes   []*types.Comment
	nextC   int64
	user    types.User

	requireAuth bool
	access      map[string]bool
	refresh     map[string]bool

	failures  []*failure
	jobFailAt map[jobKey]string

	now    func() time.Time
	logger *slog.Logger
	router *gin.Engine
}

type jobKey struct {
	repoID int64
	kind   types.JobKind
}

// failure is an injected error response.
type failure struct {
	method    string
	route     string
	status    int
	detail    string
	remaining int // <= 0: until cleared
}

// Option configures a Server.
type Option func(*Server)

// WithAuth makes every route except the auth endpoints require a valid
// access cookie.
func WithAuth() Option {
	return func(s *Server) { s.requireAuth = true }
}

// WithNow sets the clock used for timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithLogger logs every request at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New returns an empty backend.
func New(opts ...Option) *Server {
	s := &Server{
		issues:    make(map[int64]*types.Issue),
		access:    make(map[string]bool),
		refresh:   make(map[string]bool),
		jobFailAt: make(map[jobKey]string),
		now:       func() time.Time { return time.Now().UTC() },
		logger:    slog.New(slog.DiscardHandler),
		user:      types.User{ID: 1, GitHubID: 1001, Login: "octocat", Name: types.StringPtr("The Octocat")},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.logRequests)

	api := router.Group(Prefix)
	api.Use(s.injectFailures)

	auth := api.Group("/auth")
	{
		auth.GET("/me", s.handleMe)
		auth.POST("/refresh", s.handleRefresh)
		auth.POST("/logout", s.handleLogout)
	}

	data := api.Group("")
	data.Use(s.authenticate)
	{
		data.GET("/issues", s.handleListIssues)
		data.GET("/issues/repos", s.handleIssueRepos)
		data.POST("/issues", s.handleCreateIssue)
		data.GET("/issues/:id", s.handleGetIssue)
		data.PATCH("/issues/:id", s.handleUpdateIssue)
		data.DELETE("/issues/:id", s.handleDeleteIssue)
		data.GET("/issues/:id/queue-items", s.handleQueueItems)
		data.POST("/issues/:id/work-request", s.handleWorkRequest)
		data.GET("/issues/:id/comments", s.handleListComments)
		data.POST("/issues/:id/comments", s.handleCreateComment)
		data.DELETE("/issues/:id/comments/:comment", s.handleDeleteComment)

		data.GET("/labels", s.handleListLabels)
		data.POST("/labels", s.handleCreateLabel)

		data.GET("/github/connected-repos", s.handleListRepos)
		data.GET("/github/connected-repos/:id/:segment", s.handleGetJob)
		data.POST("/github/connected-repos/:id/:segment/trigger", s.handleTriggerJob)
		data.POST("/github/connected-repos/:id/:segment/retry", s.handleRetryJob)
	}
	return router
}

// ServeHTTP serves the API.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("fakeapi request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"elapsed", time.Since(start),
	)
}

// Fail makes method+route answer status with detail until ClearFailures.
// route is the gin pattern below the prefix, e.g. "/issues/:id".
func (s *Server) Fail(method, route string, status int, detail string) {
	s.addFailure(method, route, status, detail, 0)
}

// FailTimes is Fail for the next n matching requests only.
func (s *Server) FailTimes(method, route string, status int, detail string, n int) {
	s.addFailure(method, route, status, detail, n)
}

func (s *Server) addFailure(method, route string, status int, detail string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, &failure{method: method, route: route, status: status, detail: detail, remaining: n})
}

// ClearFailures removes every injected failure.
func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = nil
}

func (s *Server) injectFailures(c *gin.Context) {
	route := strings.TrimPrefix(c.FullPath(), Prefix)
	s.mu.Lock()
	var hit *failure
	for i, f := range s.failures {
		if f.method != c.Request.Method || f.route != route {
			continue
		}
		hit = f
		if f.remaining > 0 {
			f.remaining--
			if f.remaining == 0 {
				s.failures = append(s.failures[:i], s.failures[i+1:]...)
			}
		}
		break
	}
	s.mu.Unlock()
	if hit == nil {
		c.Next()
		return
	}
	c.AbortWithStatusJSON(hit.status, gin.H{"detail": hit.detail})
}

// Login issues a fresh token pair as the OAuth callback would.
func (s *Server) Login() (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueTokensLocked()
}

func (s *Server) issueTokensLocked() (string, string) {
	access := "at-" + uuid.NewString()
	refresh := "rt-" + uuid.NewString()
	s.access[access] = true
	s.refresh[refresh] = true
	return access, refresh
}

// ExpireAccessTokens invalidates every access token; refresh tokens keep
// working.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = make(map[string]bool)
}

// RevokeSessions invalidates every token.
func (s *Server) RevokeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = make(map[string]bool)
	s.refresh = make(map[string]bool)
}

func (s *Server) validAccess(c *gin.Context) bool {
	tok, err := c.Cookie("access_token")
	if err != nil || tok == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access[tok]
}

func (s *Server) authenticate(c *gin.Context) {
	if !s.requireAuth || s.validAccess(c) {
		c.Next()
		return
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
}

func setAuthCookies(c *gin.Context, access, refresh string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("access_token", access, int((30 * time.Minute).Seconds()), "/", "", false, true)
	c.SetCookie("refresh_token", refresh, int((7 * 24 * time.Hour).Seconds()), "/", "", false, true)
}

func clearAuthCookies(c *gin.Context) {
	c.SetCookie("access_token", "", -1, "/", "", false, true)
	c.SetCookie("refresh_token", "", -1, "/", "", false, true)
}

func (s *Server) handleMe(c *gin.Context) {
	if s.requireAuth && !s.validAccess(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
		return
	}
	s.mu.Lock()
	u := s.user
	s.mu.Unlock()
	c.JSON(http.StatusOK, u)
}

func (s *Server) handleRefresh(c *gin.Context) {
	tok, _ := c.Cookie("refresh_token")
	s.mu.Lock()
	if tok == "" || !s.refresh[tok] {
		s.mu.Unlock()
		clearAuthCookies(c)
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Refresh token expired"})
		return
	}
	delete(s.refresh, tok)
	access, refresh := s.issueTokensLocked()
	s.mu.Unlock()

	setAuthCookies(c, access, refresh)
	c.JSON(http.StatusOK, gin.H{"message": "tokens refreshed"})
}

func (s *Server) handleLogout(c *gin.Context) {
	if tok, err := c.Cookie("refresh_token"); err == nil {
		s.mu.Lock()
		delete(s.refresh, tok)
		s.mu.Unlock()
	}
	if tok, err := c.Cookie("access_token"); err == nil {
		s.mu.Lock()
		delete(s.access, tok)
		s.mu.Unlock()
	}
	clearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// validationError answers 422 with the list-shaped detail the backend's
// request validation produces.
func validationError(c *gin.Context, field, msg string) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": []gin.H{{
		"loc":  []string{"body", field},
		"msg":  msg,
		"type": "value_error",
	}}})
}

func notFound(c *gin.Context, what string, id interface{}) {
	c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("%s %v not found", what, id)})
}
