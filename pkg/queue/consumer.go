package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/oksasatya/messaging-system/pkg/helpers"
	"github.com/oksasatya/messaging-system/pkg/mailer"
)

type AckMode string

const (
	// AckEarly acknowledges a job before it is processed. A crash mid-send
	// loses the job.
	AckEarly AckMode = "early"
	// AckLate acknowledges after processing. A crash mid-send redelivers
	// the job, so it may be sent twice.
	AckLate AckMode = "late"
)

// ErrDeliveriesClosed is returned by Run when the broker stops delivering,
// usually because the connection dropped.
var ErrDeliveriesClosed = errors.New("queue: delivery channel closed")

// Handler processes one decoded job. Jobs are fire-and-forget so there is
// nothing to return.
type Handler func(ctx context.Context, job mailer.EmailJob)

type ConsumerConfig struct {
	URL         string
	Topology    Topology
	Prefetch    int
	Concurrency int
	AckMode     AckMode
	Tag         string
}

type Consumer struct {
	cfg ConsumerConfig
	log *logrus.Entry
}

func NewConsumer(cfg ConsumerConfig, logger logrus.FieldLogger) *Consumer {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Prefetch < cfg.Concurrency {
		cfg.Prefetch = cfg.Concurrency
	}
	if cfg.AckMode == "" {
		cfg.AckMode = AckEarly
	}
	return &Consumer{cfg: cfg, log: helpers.Component(logger, "worker")}
}

// Run consumes until ctx is cancelled (returns nil) or the delivery stream
// ends (returns ErrDeliveriesClosed). In-flight jobs finish before Run
// returns.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	if err := c.cfg.Topology.declare(ch); err != nil {
		return err
	}

	deliveries, err := ch.Consume(
		c.cfg.Topology.Queue,
		c.cfg.Tag,
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.cfg.Topology.Queue, err)
	}

	c.log.WithFields(logrus.Fields{
		"queue":       c.cfg.Topology.Queue,
		"concurrency": c.cfg.Concurrency,
		"ack_mode":    string(c.cfg.AckMode),
	}).Info("waiting for email jobs")

	return c.consume(ctx, deliveries, handle)
}

func (c *Consumer) consume(ctx context.Context, deliveries <-chan amqp.Delivery, handle Handler) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < c.cfg.Concurrency; i++ {
		g.Go(func() error {
			return c.work(gctx, deliveries, handle)
		})
	}
	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *Consumer) work(ctx context.Context, deliveries <-chan amqp.Delivery, handle Handler) error {
	// a started job runs to completion even when shutdown begins
	jobCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.handleDelivery(jobCtx, d, handle)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery, handle Handler) {
	var job mailer.EmailJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		c.log.WithError(err).WithField("message_id", d.MessageId).Warn("discarding undecodable email job")
		if err := d.Nack(false, false); err != nil {
			c.log.WithError(err).Warn("nack failed")
		}
		return
	}

	if c.cfg.AckMode != AckLate {
		c.ack(d, job)
	}
	handle(ctx, job)
	if c.cfg.AckMode == AckLate {
		c.ack(d, job)
	}
}

func (c *Consumer) ack(d amqp.Delivery, job mailer.EmailJob) {
	if err := d.Ack(false); err != nil {
		c.log.WithError(err).WithField("job_id", job.ID).Warn("ack failed")
	}
}
