package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/learnway/internal/attachment"
	"github.com/smallbiznis/learnway/internal/config"
	"github.com/smallbiznis/learnway/internal/observability"
	"github.com/smallbiznis/learnway/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/learnway/internal/observability/metrics"
	"github.com/smallbiznis/learnway/internal/observability/tracing"
	"github.com/smallbiznis/learnway/internal/scheduler/queue"
	userdomain "github.com/smallbiznis/learnway/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type EngineParam struct {
	fx.In

	Cfg         config.Config
	ObsCfg      observability.Config
	Log         *zap.Logger
	HTTPMetrics *obsmetrics.HTTPMetrics
	Users       userdomain.Repository
	Attachments *attachment.Service
	Jobs        *queue.Queue
	Handlers    *Handlers
}

// NewEngine assembles the gin router with the full middleware chain.
func NewEngine(p EngineParam) *gin.Engine {
	if !p.ObsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logger.GinMiddleware(logger.MiddlewareConfig{
		Debug:           p.ObsCfg.Debug(),
		ErrorClassifier: ClassifyError,
	}))
	engine.Use(tracing.GinMiddleware())
	engine.Use(obsmetrics.GinMiddleware(p.HTTPMetrics))
	engine.Use(IdentityMiddleware(p.Cfg, p.Log, p.Users, p.Attachments, p.Jobs))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/api/v1")
	{
		v1.GET("/organizations", p.Handlers.ListOrganizations)
		v1.GET("/organizations/:slug", p.Handlers.GetOrganization)
		v1.GET("/contracts", p.Handlers.ListContracts)
		v1.GET("/contracts/:slug", p.Handlers.GetContract)
		v1.POST("/enroll/:readable_id", p.Handlers.Enroll)
		v1.POST("/attach/:code", p.Handlers.Attach)
	}

	return engine
}

// Serve runs the HTTP server under the fx lifecycle.
func Serve(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, engine *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", strings.TrimSpace(cfg.HTTPAddr)))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("server",
	fx.Provide(NewHandlers),
	fx.Provide(NewEngine),
	fx.Invoke(Serve),
)
