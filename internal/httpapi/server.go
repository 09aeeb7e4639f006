package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/libraria/lending/internal/auth"
	"github.com/libraria/lending/internal/db"
	"github.com/libraria/lending/internal/events"
	"github.com/libraria/lending/internal/lending"
	"github.com/libraria/lending/internal/repo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const principalKey = "principal"

// Server exposes the dashboard-facing JSON surface over HTTP. It validates
// requests and sessions, dispatches into the stores and the coordinator, and
// maps typed failures onto statuses; it holds no lending logic of its own.
type Server struct {
	books     *repo.InventoryStore
	accounts  *repo.AccountDirectory
	loans     *repo.LoanLedger
	coord     *lending.LendingCoordinator
	workflow  *lending.MembershipWorkflow
	sessions  *auth.SessionManager
	publisher *events.Publisher
	database  *db.DB
	log       *zap.Logger
}

// NewServer creates the HTTP server facade
func NewServer(
	books *repo.InventoryStore,
	accounts *repo.AccountDirectory,
	loans *repo.LoanLedger,
	coord *lending.LendingCoordinator,
	workflow *lending.MembershipWorkflow,
	sessions *auth.SessionManager,
	publisher *events.Publisher,
	database *db.DB,
	log *zap.Logger,
) *Server {
	return &Server{
		books:     books,
		accounts:  accounts,
		loans:     loans,
		coord:     coord,
		workflow:  workflow,
		sessions:  sessions,
		publisher: publisher,
		database:  database,
		log:       log,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router(registry *prometheus.Registry) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.handleHealthz)
	if registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")

	api.POST("/auth/register", s.handleRegister)
	api.POST("/auth/login", s.handleLogin)
	api.GET("/books", s.handleListBooks)

	authed := api.Group("", s.requireSession())
	authed.POST("/auth/logout", s.handleLogout)
	authed.POST("/loans/borrow", s.handleBorrow)
	authed.POST("/loans/return", s.handleReturn)
	authed.GET("/loans", s.handleListLoans)

	admin := api.Group("", s.requireSession(), s.requireRole(db.RoleAdmin))
	admin.POST("/books", s.handleCreateBook)
	admin.PUT("/books/:id", s.handleUpdateBook)
	admin.DELETE("/books/:id", s.handleDeleteBook)
	admin.GET("/accounts", s.handleListAccounts)
	admin.DELETE("/accounts/:id", s.handleDeleteAccount)
	admin.GET("/accounts/pending", s.handleListPending)
	admin.POST("/accounts/:id/approve", s.handleApprove)
	admin.POST("/accounts/:id/decline", s.handleDecline)
	admin.POST("/accounts/:id/promote", s.handlePromote)
	admin.POST("/accounts/:id/demote", s.handleDemote)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// requireSession resolves the bearer token into a server-held principal.
// Role and account claims never come from the request body.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: codeUnauthorized, Error: "missing session token"})
			return
		}

		principal, ok := s.sessions.Resolve(token)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: codeUnauthorized, Error: "invalid or expired session"})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

func (s *Server) requireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := principalFrom(c)
		for _, role := range roles {
			if p.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Code: codeNotAllowed, Error: "insufficient role"})
	}
}

func principalFrom(c *gin.Context) auth.Principal {
	v, _ := c.Get(principalKey)
	p, _ := v.(auth.Principal)
	return p
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func (s *Server) handleHealthz(c *gin.Context) {
	if err := s.database.Ping(); err != nil {
		s.log.Error("Database health check failed", zap.Error(err))
		c.String(http.StatusServiceUnavailable, "unhealthy: database connection failed")
		return
	}
	c.String(http.StatusOK, "healthy")
}
