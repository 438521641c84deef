package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/messaging-system/pkg/helpers"
	"github.com/oksasatya/messaging-system/pkg/mailer"
)

// Topology names where email jobs are published and consumed.
// An empty Exchange means the AMQP default exchange.
type Topology struct {
	Exchange string
	Queue    string
	Durable  bool
}

func (t Topology) declare(ch *amqp.Channel) error {
	if t.Exchange != "" {
		if err := ch.ExchangeDeclare(
			t.Exchange,
			amqp.ExchangeDirect,
			t.Durable, // durable
			false,     // autoDelete
			false,     // internal
			false,     // noWait
			nil,
		); err != nil {
			return fmt.Errorf("declare exchange %s: %w", t.Exchange, err)
		}
	}
	if _, err := ch.QueueDeclare(
		t.Queue,
		t.Durable, // durable
		false,     // autoDelete
		false,     // exclusive
		false,     // noWait
		nil,
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}
	if t.Exchange != "" {
		if err := ch.QueueBind(t.Queue, t.Queue, t.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", t.Queue, err)
		}
	}
	return nil
}

// Publisher publishes email jobs. The broker connection is dialed on first
// use and again after it drops; a failed publish is reported, never retried.
type Publisher struct {
	url  string
	topo Topology
	log  *logrus.Entry

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(url string, topo Topology, logger logrus.FieldLogger) *Publisher {
	return &Publisher{url: url, topo: topo, log: helpers.Component(logger, "queue")}
}

// Publish JSON-encodes job and hands it to the broker. It returns as soon as
// the broker has the frame; it never waits for a worker.
func (p *Publisher) Publish(ctx context.Context, job mailer.EmailJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	if err := ch.PublishWithContext(ctx,
		p.topo.Exchange, // "" = default exchange
		p.topo.Queue,    // routing key = queue
		false,           // mandatory
		false,           // immediate
		newPublishing(job, body, p.topo.Durable),
	); err != nil {
		p.reset()
		return fmt.Errorf("publish to %s: %w", p.topo.Queue, err)
	}
	p.log.WithField("job_id", job.ID).Debug("email job published")
	return nil
}

func newPublishing(job mailer.EmailJob, body []byte, durable bool) amqp.Publishing {
	mode := amqp.Transient
	if durable {
		mode = amqp.Persistent
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: mode,
		MessageId:    job.ID,
		Timestamp:    time.Now().UTC(),
		Type:         "send_email",
		Body:         body,
	}
}

// channel returns an open channel, dialing when needed. Caller holds p.mu.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.conn != nil && !p.conn.IsClosed() && p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := p.topo.declare(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn, p.ch = conn, ch
	p.log.WithField("queue", p.topo.Queue).Info("connected to broker")
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Connected reports whether a broker connection is currently open.
func (p *Publisher) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil && !p.conn.IsClosed()
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
}
