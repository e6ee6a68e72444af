package app

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"webcaf.gov.uk/webcaf/internal/api/handlers"
	"webcaf.gov.uk/webcaf/internal/api/middleware"
	"webcaf.gov.uk/webcaf/internal/config"
	"webcaf.gov.uk/webcaf/internal/pkg/metrics"
	"webcaf.gov.uk/webcaf/internal/session"
)

// defaultAllowedOrigins is used when server.allowed_origins is empty.
var defaultAllowedOrigins = []string{
	"http://localhost:8080",
	"http://127.0.0.1:8080",
}

// newRouter assembles the page stack. Health checks sit outside the session
// and gate; every page runs session → errors → CSRF → gate → attribution.
func newRouter(
	cfg *config.Config,
	server *handlers.Server,
	sessions *session.Manager,
	users middleware.UserLookup,
	profiles middleware.ProfileResolver,
	m *metrics.Collector,
) *gin.Engine {
	router := gin.New()
	router.SetHTMLTemplate(handlers.MustTemplates())
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Metrics(m))
	router.Use(middleware.SecureHeaders(cfg.Session.Secure), cors.New(buildCORSConfig(cfg)))

	handlers.RegisterHealth(router, server)

	pages := router.Group("/")
	pages.Use(
		middleware.AccessLog(),
		sessions.Middleware(),
		middleware.ErrorHandler(),
		middleware.CSRF(),
		middleware.NewGate(cfg.Auth).Middleware(),
		middleware.Attribution(users, profiles),
		middleware.NoStore(),
	)
	handlers.RegisterRoutes(pages, server)
	return router
}

// buildCORSConfig turns the origin allowlist into a cors.Config. A "*"
// entry is dropped unless server.unsafe_allow_all_origins is set, and
// allowing every origin always disables credentials.
func buildCORSConfig(cfg *config.Config) cors.Config {
	out := cors.Config{
		AllowMethods:     []string{"GET", "POST", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", middleware.CSRFHeader, middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: cfg.Server.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}

	origins := make([]string, 0, len(cfg.Server.AllowedOrigins))
	wildcard := false
	for _, o := range cfg.Server.AllowedOrigins {
		if o == "*" {
			wildcard = true
			continue
		}
		if o != "" {
			origins = append(origins, o)
		}
	}

	if wildcard && cfg.Server.UnsafeAllowAllOrigins {
		out.AllowAllOrigins = true
		out.AllowCredentials = false
		return out
	}
	if len(origins) == 0 {
		origins = append(origins, defaultAllowedOrigins...)
	}
	out.AllowOrigins = origins
	return out
}
