package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/oksasatya/messaging-system/config"
	"github.com/oksasatya/messaging-system/internal/application"
	"github.com/oksasatya/messaging-system/internal/container"
	"github.com/oksasatya/messaging-system/internal/interface/middleware"
	"github.com/oksasatya/messaging-system/internal/router"
	"github.com/oksasatya/messaging-system/pkg/helpers"
	"github.com/oksasatya/messaging-system/pkg/metrics"
	"github.com/oksasatya/messaging-system/pkg/queue"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP front end",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				a.cfg.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, a.cfg)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "override PORT")
	return cmd
}

// newRegistry returns a Prometheus registry with the process and Go
// runtime collectors already registered.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// buildContainer constructs the serve-side components. The returned cleanup
// releases them in reverse order.
func buildContainer(cfg *config.Config, logs *logging) (*container.Container, func()) {
	reg := newRegistry()
	m := metrics.New(reg)

	rdb := helpers.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	pub := queue.NewPublisher(cfg.RabbitMQURL, queue.Topology{
		Exchange: cfg.RabbitMQExchange,
		Queue:    cfg.RabbitMQEmailQueue,
		Durable:  cfg.RabbitMQDurable,
	}, logs.Logger)

	c := &container.Container{
		Config:    cfg,
		Logger:    logs.Logger,
		Redis:     rdb,
		Publisher: pub,
		Metrics:   m,
		Gatherer:  reg,
		Emails:    application.NewEmailService(pub, nil, nil, m, logs.Logger),
	}
	return c, func() {
		pub.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
	}
}

// newEngine builds the gin engine with global middleware and all modules.
func newEngine(c *container.Container) *gin.Engine {
	cfg := c.Config
	gin.SetMode(cfg.GinMode)

	r := gin.New()
	// client IP resolution is done by RealIP
	_ = r.SetTrustedProxies(nil)
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.RealIP(cfg.TrustProxyHeaders))
	if origins := cfg.CORSOrigins(); len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  origins,
			AllowMethods:  []string{http.MethodGet, http.MethodOptions},
			AllowHeaders:  []string{"Origin", "Accept", middleware.RequestIDHeader},
			ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
			MaxAge:        12 * time.Hour,
		}))
	}
	if cfg.HTTPLogEnabled {
		r.Use(middleware.AccessLog(c.Logger))
	}

	reg := router.NewRegistry(r)
	router.InitModules(reg, c)
	reg.RegisterAll()
	return r
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logs, err := setupLogging(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer logs.Close()
	logger := logs.Logger

	c, cleanup := buildContainer(cfg, logs)
	defer cleanup()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newEngine(c),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("listen failed")
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
		return err
	}
	logger.Info("server exited properly")
	return nil
}
