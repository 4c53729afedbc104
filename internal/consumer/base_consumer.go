package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"
)

// ErrDeliveriesClosed is returned by Start when the broker closes the
// delivery channel before the context is done.
var ErrDeliveriesClosed = errors.New("delivery channel closed by broker")

// Topology names the exchange, queues and binding the consumer declares.
type Topology struct {
	Exchange   string
	RoutingKey string
	Queue      string
	DeadLetter string
	Prefetch   int
	Workers    int
}

func (t *Topology) applyDefaults() {
	if t.Exchange == "" {
		t.Exchange = "notifications.direct"
	}
	if t.RoutingKey == "" {
		t.RoutingKey = "push"
	}
	if t.Prefetch <= 0 {
		t.Prefetch = 50
	}
	if t.Workers <= 0 {
		t.Workers = 5
	}
}

// HandlerFunc processes one delivery and is responsible for acking it.
type HandlerFunc func(context.Context, amqp.Delivery) error

// BaseConsumer wires RabbitMQ connectivity, queue declaration and worker handling.
type BaseConsumer struct {
	conn     *amqp.Connection
	topology Topology
	logger   *slog.Logger
}

func NewBaseConsumer(conn *amqp.Connection, topology Topology, logger *slog.Logger) *BaseConsumer {
	topology.applyDefaults()
	return &BaseConsumer{
		conn:     conn,
		topology: topology,
		logger:   logger,
	}
}

// Start consumes until ctx is done or the broker drops the channel. Workers
// finish the delivery in hand before Start returns.
func (c *BaseConsumer) Start(ctx context.Context, handler HandlerFunc) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := c.setupQueue(ch); err != nil {
		return fmt.Errorf("queue setup failed: %w", err)
	}

	if err := ch.Qos(c.topology.Prefetch, 0, false); err != nil {
		return fmt.Errorf("qos configuration failed: %w", err)
	}

	deliveries, err := ch.Consume(
		c.topology.Queue,
		"",
		false, // autoAck
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.topology.Queue, err)
	}

	c.logger.Info("consumer started",
		slog.String("queue", c.topology.Queue),
		slog.Int("workers", c.topology.Workers),
		slog.Int("prefetch", c.topology.Prefetch),
	)
	return c.run(ctx, deliveries, handler)
}

func (c *BaseConsumer) run(ctx context.Context, deliveries <-chan amqp.Delivery, handler HandlerFunc) error {
	var (
		wg     sync.WaitGroup
		closed = make(chan struct{})
		once   sync.Once
	)
	for i := 0; i < c.topology.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-deliveries:
					if !ok {
						once.Do(func() { close(closed) })
						return
					}
					if err := handler(ctx, msg); err != nil {
						c.logger.Error("handler returned error", slog.Int("worker", id), slog.Any("error", err))
					}
				}
			}
		}(i)
	}

	var err error
	select {
	case <-ctx.Done():
	case <-closed:
		err = ErrDeliveriesClosed
	}
	wg.Wait()
	return err
}

func (c *BaseConsumer) setupQueue(ch *amqp.Channel) error {
	t := c.topology
	args := amqp.Table{}
	if t.DeadLetter != "" {
		args["x-dead-letter-exchange"] = ""
		args["x-dead-letter-routing-key"] = t.DeadLetter
	}

	if err := ch.ExchangeDeclare(
		t.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return err
	}

	if t.DeadLetter != "" {
		if _, err := ch.QueueDeclare(t.DeadLetter, true, false, false, false, nil); err != nil {
			return err
		}
	}

	if _, err := ch.QueueDeclare(
		t.Queue,
		true,
		false,
		false,
		false,
		args,
	); err != nil {
		return err
	}

	return ch.QueueBind(t.Queue, t.RoutingKey, t.Exchange, false, nil)
}
