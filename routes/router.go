package routes

import (
	"net/http"

	"spotsort-be/controllers"
	"spotsort-be/middlewares"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type Handlers struct {
	Issues *controllers.IssueController
	Auth   *controllers.AuthController
	Audit  *controllers.AuditController
}

type Options struct {
	Logger   logrus.FieldLogger
	Resolver middlewares.IdentityResolver
	// OtpLimiter guards the routes that send or check one-time codes. Optional.
	OtpLimiter     gin.HandlerFunc
	AllowedOrigins []string
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer           prometheus.Gatherer
	MaxMultipartMemory int64
}

// New builds the engine with every API route mounted.
func New(h Handlers, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middlewares.RequestLogger(opts.Logger))

	corsConfig := cors.DefaultConfig()
	if len(opts.AllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = opts.AllowedOrigins
	}
	corsConfig.AddAllowHeaders("Authorization")
	r.Use(cors.New(corsConfig))

	if opts.MaxMultipartMemory > 0 {
		r.MaxMultipartMemory = opts.MaxMultipartMemory
	}

	limiter := opts.OtpLimiter
	if limiter == nil {
		limiter = func(c *gin.Context) { c.Next() }
	}
	auth := middlewares.AuthMiddleware(opts.Resolver)

	IssueRoutes(r, h.Issues, auth, limiter)
	AuthRoutes(r, h.Auth, auth, limiter)
	AuditRoutes(r, h.Audit, auth)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	return r
}
