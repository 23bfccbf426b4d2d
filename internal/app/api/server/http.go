package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/aspy/docs"
	"github.com/fatflowers/aspy/internal/app/api/handlers"
	mw "github.com/fatflowers/aspy/internal/app/api/middleware"
	"github.com/fatflowers/aspy/internal/app/service/billing"
	"github.com/fatflowers/aspy/internal/app/service/certificates"
	"github.com/fatflowers/aspy/internal/app/service/execution"
	nh "github.com/fatflowers/aspy/internal/app/service/notification_handler"
	"github.com/fatflowers/aspy/internal/app/service/statistics"
	"github.com/fatflowers/aspy/internal/app/service/user"
	cfgpkg "github.com/fatflowers/aspy/pkg/config"
	"github.com/fatflowers/aspy/pkg/metrics"
)

func newEngine(cfg *cfgpkg.Config) *gin.Engine {
	if cfg.Env == cfgpkg.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// Request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware(), mw.CORSMiddleware(cfg.CORS))
	return r
}

type RouteDeps struct {
	fx.In

	Log          *zap.SugaredLogger
	Cfg          *cfgpkg.Config
	DB           *gorm.DB
	Users        *user.Service
	Billing      *billing.Service
	Execution    *execution.Service
	Certificates *certificates.Service
	Stats        *statistics.Service
	Notification *nh.NotificationHandler
}

func registerRoutes(r *gin.Engine, d RouteDeps) {
	log := d.Log

	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))
	handlers.RegisterHealthRoutes(pub, d.DB)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))

	authed := apiV1.Group("")
	authed.Use(mw.AuthMiddleware(d.Users, isInactive, log))

	handlers.RegisterAuthRoutes(apiV1, authed, d.Users, log)
	handlers.RegisterBillingRoutes(apiV1, authed, d.Billing, log)
	handlers.RegisterPaymentWebhookRoutes(apiV1, d.Notification)
	handlers.RegisterExecutionRoutes(apiV1, authed, d.Execution, d.Certificates, log)

	admin := authed.Group("/admin")
	admin.Use(mw.AdminMiddleware())
	handlers.RegisterAdminRoutes(admin, d.Stats, log)
}

func isInactive(err error) bool {
	return errors.Is(err, user.ErrInactiveUser)
}

// registerMetrics serves request metrics on their own listener when
// metrics_addr is set.
func registerMetrics(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	if cfg.MetricsAddr == "" {
		return
	}
	p := metrics.NewPrometheus(metrics.NewPrometheusOptions{})
	r.Use(p.HandlerFunc())

	mux := http.NewServeMux()
	mux.Handle(p.MetricsPath, p.Handler())
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("metrics server error: %v", err)
				}
			}()
			log.Infow("metrics started", "addr", cfg.MetricsAddr)
			return nil
		},
		OnStop: srv.Shutdown,
	})
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerMetrics),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
