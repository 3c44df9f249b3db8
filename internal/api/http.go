package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/signalsfoundry/fibertrace/internal/logging"
	"github.com/signalsfoundry/fibertrace/internal/observability"
)

// HTTPConfig configures the HTTP surface.
type HTTPConfig struct {
	ServiceName string
	// RateLimit is requests per second across the server; zero disables it.
	RateLimit float64
	Burst     int
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// NewHTTPHandler returns a gin engine serving:
//
//	GET /v1/cables/:cable/strands/:strand/trace[?version=]
//	GET /v1/snapshot
//	GET /healthz
//	GET /metrics
func NewHTTPHandler(svc *Service, cfg HTTPConfig, log logging.Logger, metrics *observability.APICollector) http.Handler {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "fibertrace"
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(requestIDMiddleware(log))
	r.Use(metrics.GinMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		if _, err := svc.holder.Current(); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/v1")
	if cfg.RateLimit > 0 {
		v1.Use(rateLimit(cfg.RateLimit, cfg.Burst))
	}
	v1.GET("/cables/:cable/strands/:strand/trace", func(c *gin.Context) {
		strand, err := strconv.Atoi(c.Param("strand"))
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody{Error: "strand must be an integer", Code: "InvalidArgument"})
			return
		}
		resp, err := svc.Trace(c.Request.Context(), TraceRequest{
			CableID: c.Param("cable"),
			Strand:  strand,
			Version: c.Query("version"),
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	})
	v1.GET("/snapshot", func(c *gin.Context) {
		info, err := svc.Snapshot(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, info)
	})

	return r
}

func writeError(c *gin.Context, err error) {
	c.JSON(HTTPStatus(err), errorBody{Error: err.Error(), Code: codeFor(err).String()})
}

// rateLimit rejects requests beyond a shared token bucket with 429.
func rateLimit(perSecond float64, burst int) gin.HandlerFunc {
	if burst <= 0 {
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded", Code: "ResourceExhausted"})
			return
		}
		c.Next()
	}
}
