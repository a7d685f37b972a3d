package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	accounthandler "github.com/jwalitptl/account-security/internal/handler/account"
	audithandler "github.com/jwalitptl/account-security/internal/handler/audit"
	authhandler "github.com/jwalitptl/account-security/internal/handler/auth"
	"github.com/jwalitptl/account-security/internal/handler/health"
	"github.com/jwalitptl/account-security/internal/handler/prometheus"
	"github.com/jwalitptl/account-security/internal/middleware"
)

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	audit    *middleware.AuditMiddleware
	authH    *authhandler.Handler
	accountH *accounthandler.Handler
	auditH   *audithandler.Handler
	healthH  *health.Handler
	metrics  *prometheus.Handler
	limiter  *middleware.RateLimiter
	config   RouterConfig
}

type RouterConfig struct {
	// RateLimit of zero disables the login limiter.
	RateLimit      rate.Limit
	RateBurst      int
	RateIdleExpiry time.Duration
	RequestTimeout time.Duration
	CORSConfig     middleware.CORSConfig
	TrustedProxies []string
	Mode           string
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	audit *middleware.AuditMiddleware,
	authH *authhandler.Handler,
	accountH *accounthandler.Handler,
	auditH *audithandler.Handler,
	healthH *health.Handler,
	metrics *prometheus.Handler,
	config RouterConfig,
) (*Router, error) {
	mode := config.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	engine := gin.New()
	if err := engine.SetTrustedProxies(config.TrustedProxies); err != nil {
		return nil, err
	}

	validation := middleware.DefaultValidationConfig()
	if err := middleware.RegisterValidators(validation); err != nil {
		return nil, err
	}

	r := &Router{
		engine:   engine,
		auth:     auth,
		audit:    audit,
		authH:    authH,
		accountH: accountH,
		auditH:   auditH,
		healthH:  healthH,
		metrics:  metrics,
		config:   config,
	}
	if config.RateLimit > 0 {
		r.limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:       config.RateLimit,
			Burst:      config.RateBurst,
			IdleExpiry: config.RateIdleExpiry,
		})
	}

	// order matters: Recovery and RequestID wrap everything, the error
	// renderer runs after validation has had a chance to format bind errors
	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		metrics.Middleware(),
		middleware.CORS(config.CORSConfig),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.SizeLimit(middleware.DefaultSizeLimitConfig()),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
		middleware.ErrorHandler(),
		middleware.Validation(validation),
	)

	r.setup()
	return r, nil
}

func (r *Router) setup() {
	api := r.engine.Group("/api/v1")

	api.Use(middleware.Version(middleware.DefaultVersionConfig()))

	r.healthH.RegisterRoutes(api)

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	if r.audit != nil {
		protected.Use(r.audit.DeniedAccess())
	}

	var limit gin.HandlerFunc
	if r.limiter != nil {
		limit = r.limiter.RateLimit()
	}
	r.authH.RegisterRoutes(api, protected, limit)
	r.accountH.RegisterRoutes(protected)
	r.auditH.RegisterRoutes(protected)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
