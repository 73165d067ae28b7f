package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one job id. A returned error dead-letters the message.
type Handler func(ctx context.Context, jobID string) error

// Delivery is the part of amqp.Delivery a worker acknowledges.
type Delivery interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

type Consumer struct {
	url         string
	queue       string
	concurrency int
	log         *slog.Logger
}

func NewConsumer(url, queue string, concurrency int, log *slog.Logger) *Consumer {
	if concurrency <= 0 {
		concurrency = 2
	}
	if concurrency > 50 {
		concurrency = 50
	}
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{url: url, queue: queue, concurrency: concurrency, log: log}
}

// Run consumes until ctx is cancelled or the broker closes the delivery
// channel. In-flight jobs finish before Run returns.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("queue: dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("queue: channel: %w", err)
	}
	defer ch.Close()

	if err := declareTopology(ch, c.queue); err != nil {
		return fmt.Errorf("queue: declare %s: %w", c.queue, err)
	}

	//  strict concurrency control
	if err := ch.Qos(c.concurrency, 0, false); err != nil {
		return fmt.Errorf("queue: qos: %w", err)
	}

	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue: consume: %w", err)
	}

	c.log.Info("worker started", "queue", c.queue, "concurrency", c.concurrency)
	return c.dispatch(ctx, msgs, h)
}

func (c *Consumer) dispatch(ctx context.Context, msgs <-chan amqp.Delivery, h Handler) error {
	// worker pool
	work := make(chan amqp.Delivery, c.concurrency*2)

	var wg sync.WaitGroup
	wg.Add(c.concurrency)
	for i := 0; i < c.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range work {
				c.handle(ctx, workerID, d, d.Body, h)
			}
		}(i)
	}

	defer func() {
		close(work)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("worker shutting down")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("queue: delivery channel closed")
			}
			work <- d
		}
	}
}

func (c *Consumer) handle(ctx context.Context, workerID int, d Delivery, body []byte, h Handler) {
	m, err := DecodeJobMessage(body)
	if err != nil {
		c.log.Warn("bad message", "worker", workerID, "err", err)
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	// jobs already running finish even if shutdown was requested
	if err := runHandler(context.WithoutCancel(ctx), h, m.JobID); err != nil {
		c.log.Error("job failed", "worker", workerID, "job_id", m.JobID, "cost", time.Since(start), "err", err)
		_ = d.Nack(false, false)
		return
	}
	if err := d.Ack(false); err != nil {
		c.log.Error("ack failed", "worker", workerID, "job_id", m.JobID, "err", err)
	}
}

// runHandler turns a handler panic into an error so one bad job cannot take
// the worker down.
func runHandler(ctx context.Context, h Handler, jobID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue: handler panic: %v", r)
		}
	}()
	return h(ctx, jobID)
}
