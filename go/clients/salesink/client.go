// Package salesink delivers confirmed sales to an external logging
// endpoint. Delivery is best effort: failures are logged and dropped.
package salesink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/vanguard/go/clients"
	"github.com/mcdev12/vanguard/go/internal/models"
)

type Config struct {
	URL        string
	Timeout    time.Duration
	QueueSize  int
	NumWorkers int
}

func DefaultConfig(url string) Config {
	return Config{
		URL:        url,
		Timeout:    10 * time.Second,
		QueueSize:  256,
		NumWorkers: 2,
	}
}

// Client queues sale notifications and posts them from a worker pool so
// a slow or unreachable sink never holds up a sale.
type Client struct {
	*clients.BaseClient

	cfg    Config
	workCh chan models.SaleNotification
	wg     sync.WaitGroup

	// mu orders sends on workCh against close.
	mu     sync.RWMutex
	closed bool

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func New(cfg Config) *Client {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	c := &Client{
		BaseClient: clients.NewBaseClient(cfg.URL),
		cfg:        cfg,
		workCh:     make(chan models.SaleNotification, cfg.QueueSize),
	}
	if cfg.Timeout > 0 {
		c.SetTimeout(cfg.Timeout)
	}
	return c
}

// Start launches the delivery workers. They exit when Close is called or
// ctx is cancelled.
func (c *Client) Start(ctx context.Context) {
	for i := 0; i < c.cfg.NumWorkers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i)
	}
	log.Info().Int("workers", c.cfg.NumWorkers).Str("url", c.cfg.URL).Msg("Sale sink started")
}

// NotifySale queues n without blocking.
func (c *Client) NotifySale(n models.SaleNotification) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.workCh <- n:
	default:
		c.dropped.Add(1)
		log.Warn().Str("student_id", n.StudentID).Msg("Sale sink queue full, dropping notification")
	}
}

func (c *Client) worker(ctx context.Context, id int) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-c.workCh:
			if !ok {
				return
			}
			c.deliver(ctx, id, n)
		}
	}
}

func (c *Client) deliver(ctx context.Context, workerID int, n models.SaleNotification) {
	if _, err := c.PostJSON(ctx, "", n); err != nil {
		c.failed.Add(1)
		log.Error().
			Err(err).
			Int("worker_id", workerID).
			Str("student_id", n.StudentID).
			Str("vanguard", n.VanguardName).
			Int("price", n.Price).
			Msg("Failed to deliver sale notification")
		return
	}
	c.delivered.Add(1)
	log.Debug().Int("worker_id", workerID).Str("student_id", n.StudentID).Msg("Sale notification delivered")
}

// Stats reports delivery counters.
func (c *Client) Stats() (delivered, failed, dropped int64) {
	return c.delivered.Load(), c.failed.Load(), c.dropped.Load()
}

// Close stops accepting notifications and waits for queued ones.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.workCh)
	c.mu.Unlock()

	c.wg.Wait()
}
