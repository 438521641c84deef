package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/oksasatya/messaging-system/config"
	"github.com/oksasatya/messaging-system/internal/application"
	"github.com/oksasatya/messaging-system/pkg/helpers"
	"github.com/oksasatya/messaging-system/pkg/mailer"
	"github.com/oksasatya/messaging-system/pkg/metrics"
	"github.com/oksasatya/messaging-system/pkg/queue"
)

func newWorkerCmd(a *app) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume queued email jobs and send them",
		RunE: func(cmd *cobra.Command, args []string) error {
			if concurrency > 0 {
				a.cfg.WorkerConcurrency = concurrency
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWorker(ctx, a.cfg)
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "override WORKER_CONCURRENCY")
	return cmd
}

// newRelay picks the transport named by MAIL_PROVIDER.
func newRelay(ctx context.Context, cfg *config.Config) (mailer.Relay, error) {
	switch cfg.MailProvider {
	case "smtp":
		return mailer.NewSMTPRelay(cfg.SMTPHost, cfg.SMTPPort, cfg.MailSender, cfg.SMTPTimeout), nil
	case "mailgun":
		return mailer.NewMailgunRelay(cfg.MailgunDomain, cfg.MailgunAPIKey), nil
	case "ses":
		return mailer.NewSESRelay(ctx, mailer.SESConfig{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.MailProvider)
	}
}

func newMailer(relay mailer.Relay, cfg *config.Config, m *metrics.Metrics, logger logrus.FieldLogger) *mailer.Mailer {
	return mailer.New(relay, logger, mailer.Options{
		Sender:             cfg.MailSender,
		Subject:            cfg.MailSubject,
		Body:               cfg.MailBody,
		Timeout:            cfg.SMTPTimeout,
		BreakerMaxFailures: uint32(cfg.BreakerMaxFailures),
		BreakerOpenTimeout: cfg.BreakerOpenTimeout,
		Metrics:            m,
	})
}

func runWorker(ctx context.Context, cfg *config.Config) error {
	logs, err := setupLogging(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer logs.Close()
	logger := logs.Logger
	log := helpers.Component(logger, "worker")

	relay, err := newRelay(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("mail relay not configured")
		return err
	}

	reg := newRegistry()
	m := metrics.New(reg)
	if cfg.WorkerMetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.WorkerMetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("metrics listener failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	rdb := helpers.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}
	var ledger application.JobLedger
	if rdb != nil {
		ledger = application.NewRedisLedger(rdb, cfg.IdempotencyTTL)
	}

	svc := application.NewEmailService(nil, newMailer(relay, cfg, m, logger), ledger, m, logger)
	consumer := queue.NewConsumer(queue.ConsumerConfig{
		URL: cfg.RabbitMQURL,
		Topology: queue.Topology{
			Exchange: cfg.RabbitMQExchange,
			Queue:    cfg.RabbitMQEmailQueue,
			Durable:  cfg.RabbitMQDurable,
		},
		Prefetch:    cfg.WorkerPrefetch,
		Concurrency: cfg.WorkerConcurrency,
		AckMode:     queue.AckMode(cfg.WorkerAckMode),
	}, logger)

	handle := func(ctx context.Context, job mailer.EmailJob) {
		svc.Process(ctx, job)
	}
	log.WithField("relay", relay.Name()).Info("email worker starting")
	return consumeLoop(ctx, consumer, handle, cfg.WorkerReconnectDelay, log)
}

// runner is the part of queue.Consumer the reconnect loop needs.
type runner interface {
	Run(ctx context.Context, handle queue.Handler) error
}

// consumeLoop keeps the consumer running across broker disconnects until
// ctx is done.
func consumeLoop(ctx context.Context, c runner, handle queue.Handler, delay time.Duration, log logrus.FieldLogger) error {
	for {
		err := c.Run(ctx, handle)
		if ctx.Err() != nil {
			log.Info("email worker stopped")
			return nil
		}
		log.WithError(err).Warnf("consumer stopped, reconnecting in %s", delay)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			log.Info("email worker stopped")
			return nil
		case <-t.C:
		}
	}
}
