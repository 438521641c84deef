package helpers

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/sirupsen/logrus"
)

// NewESClient creates an Elasticsearch client with sane defaults and optional basic auth.
func NewESClient(addrs []string, username, password string) (*elasticsearch.Client, error) {
	cfg := elasticsearch.Config{
		Addresses: addrs,
		Username:  username,
		Password:  password,
		Transport: &http.Transport{
			MaxIdleConnsPerHost:   10,
			ResponseHeaderTimeout: 5 * time.Second,
			TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
			DialContext:           (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		},
	}
	return elasticsearch.NewClient(cfg)
}

type esLogDoc struct {
	Timestamp time.Time      `json:"@timestamp"`
	Logger    string         `json:"logger"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// ESHook ships log entries to an Elasticsearch index from a background
// goroutine. Entries are dropped when the buffer is full so logging never
// blocks on the cluster.
type ESHook struct {
	client  *elasticsearch.Client
	index   string
	name    string
	entries chan esLogDoc
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewESHook starts the shipping goroutine. Call Close to flush and stop it.
func NewESHook(client *elasticsearch.Client, index, loggerName string, buffer int) *ESHook {
	if buffer <= 0 {
		buffer = 256
	}
	h := &ESHook{
		client:  client,
		index:   index,
		name:    loggerName,
		entries: make(chan esLogDoc, buffer),
		done:    make(chan struct{}),
	}
	go h.run()
	return h
}

// Levels implements logrus.Hook
func (h *ESHook) Levels() []logrus.Level { return logrus.AllLevels }

// Fire implements logrus.Hook
func (h *ESHook) Fire(e *logrus.Entry) error {
	doc := esLogDoc{
		Timestamp: e.Time.UTC(),
		Logger:    h.name,
		Level:     e.Level.String(),
		Message:   e.Message,
	}
	if len(e.Data) > 0 {
		doc.Fields = make(map[string]any, len(e.Data))
		for k, v := range e.Data {
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			doc.Fields[k] = v
		}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil
	}
	select {
	case h.entries <- doc:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// Dropped reports how many entries were discarded because the buffer was full.
func (h *ESHook) Dropped() int64 { return h.dropped.Load() }

func (h *ESHook) run() {
	defer close(h.done)
	for doc := range h.entries {
		if err := h.ship(doc); err != nil {
			fmt.Fprintf(os.Stderr, "failed to ship log entry to Elasticsearch: %v\n", err)
		}
	}
}

func (h *ESHook) ship(doc esLogDoc) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req := esapi.IndexRequest{Index: h.index, Body: bytes.NewReader(body)}
	res, err := req.Do(ctx, h.client)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return fmt.Errorf("index %s: %s", h.index, res.Status())
	}
	return nil
}

// Close stops accepting entries and waits until the buffer is drained.
func (h *ESHook) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.entries)
	h.mu.Unlock()
	<-h.done
}
