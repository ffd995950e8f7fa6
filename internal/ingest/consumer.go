package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"matchreel/internal/api"
	"matchreel/internal/config"
	"matchreel/internal/logging"
	"matchreel/internal/retry"
	"matchreel/internal/services"
)

// reconnectDelay spaces reconnection attempts after a lost broker connection.
const reconnectDelay = 5 * time.Second

// Submitter accepts decoded submissions. api.JobService satisfies it.
type Submitter interface {
	Submit(ctx context.Context, req api.SubmitRequest) (api.SubmitResponse, error)
}

// replyFunc publishes a response to a delivery's reply-to queue.
type replyFunc func(ctx context.Context, d amqp.Delivery, body []byte) error

// Consumer reads job submissions from an AMQP queue.
type Consumer struct {
	cfg       config.Intake
	submitter Submitter
	retry     *retry.Executor
	logger    *slog.Logger
	dial      func(url string) (*amqp.Connection, error)
}

// NewConsumer constructs the AMQP intake.
func NewConsumer(cfg config.Intake, submitter Submitter, executor *retry.Executor, logger *slog.Logger) *Consumer {
	return &Consumer{
		cfg:       cfg,
		submitter: submitter,
		retry:     executor,
		logger:    logging.NewComponentLogger(logger, "intake"),
		dial:      amqp.Dial,
	}
}

// Run consumes until ctx is cancelled, reconnecting when the broker drops
// the connection.
func (c *Consumer) Run(ctx context.Context) error {
	if strings.TrimSpace(c.cfg.URL) == "" {
		return services.Wrap(services.ErrConfiguration, "intake", "run", "intake url not configured", nil)
	}
	for {
		conn, err := retry.DoValue(ctx, c.retry, "connect amqp", func(context.Context) (*amqp.Connection, error) {
			conn, err := c.dial(c.cfg.URL)
			if err != nil {
				return nil, services.Wrap(services.ErrTransient, "intake", "dial", "", err)
			}
			return conn, nil
		})
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			c.logger.Info("intake connected",
				logging.String(logging.FieldEventType, "intake_connected"),
				logging.String("queue", c.cfg.Queue),
			)
			err = c.consume(ctx, conn)
			_ = conn.Close()
			if ctx.Err() != nil {
				return nil
			}
		}
		logging.WarnWithContext(c.logger, "intake connection lost", "intake_disconnected",
			logging.Error(err),
			logging.Duration("retry_in", reconnectDelay),
			logging.String(logging.FieldErrorHint, "check the AMQP broker and intake.url"),
			logging.String(logging.FieldImpact, "queued submissions wait in the broker until reconnect"),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(c.cfg.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", c.cfg.Exchange, err)
	}
	q, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", c.cfg.Queue, err)
	}
	if err := ch.QueueBind(q.Name, c.cfg.RoutingKey, c.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", q.Name, err)
	}
	if err := ch.Qos(max(c.cfg.Prefetch, 1), 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "matchreel-intake", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.Name, err)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	reply := func(ctx context.Context, d amqp.Delivery, body []byte) error {
		return ch.PublishWithContext(ctx, "", d.ReplyTo, false, false, amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: d.CorrelationId,
			Body:          body,
		})
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-closed:
			if amqpErr == nil {
				return errors.New("connection closed")
			}
			return amqpErr
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(ctx, d, reply)
		}
	}
}

// handle submits one delivery and settles it: ack on success, reject
// malformed or invalid payloads, requeue everything else.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, reply replyFunc) {
	logger := c.logger.With(logging.String("message_id", d.MessageId))

	var req api.SubmitRequest
	if err := json.Unmarshal(d.Body, &req); err != nil {
		logging.WarnWithContext(logger, "intake message is not valid json", "intake_rejected",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "publish an api.SubmitRequest json body"),
			logging.String(logging.FieldImpact, "message dropped"),
		)
		c.settle(logger, d.Reject(false))
		return
	}

	resp, err := c.submitter.Submit(ctx, req)
	switch {
	case errors.Is(err, services.ErrValidation):
		logging.WarnWithContext(logger, "intake submission invalid", "intake_rejected",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the submission fields"),
			logging.String(logging.FieldImpact, "message dropped"),
		)
		c.reply(ctx, logger, d, reply, api.ErrorResponse{Error: err.Error()})
		c.settle(logger, d.Reject(false))
		return
	case err != nil:
		logging.WarnWithContext(logger, "intake submission failed", "intake_requeued",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database health"),
			logging.String(logging.FieldImpact, "message requeued"),
		)
		c.settle(logger, d.Nack(false, true))
		return
	}

	logger.Info("intake submission queued",
		logging.String(logging.FieldEventType, "intake_enqueued"),
		logging.String("job_id", resp.JobID),
		logging.String("club", req.Club),
	)
	c.reply(ctx, logger, d, reply, resp)
	c.settle(logger, d.Ack(false))
}

func (c *Consumer) reply(ctx context.Context, logger *slog.Logger, d amqp.Delivery, reply replyFunc, payload any) {
	if reply == nil || strings.TrimSpace(d.ReplyTo) == "" {
		return
	}
	body, err := json.Marshal(payload)
	if err == nil {
		err = reply(ctx, d, body)
	}
	if err != nil {
		logging.WarnWithContext(logger, "intake reply failed", "intake_reply_failed",
			logging.Error(err),
			logging.String("reply_to", d.ReplyTo),
			logging.String(logging.FieldErrorHint, "check the reply queue exists"),
			logging.String(logging.FieldImpact, "caller must poll job status instead"),
		)
	}
}

func (c *Consumer) settle(logger *slog.Logger, err error) {
	if err != nil {
		logger.Error("failed to settle intake delivery",
			logging.String(logging.FieldEventType, "intake_settle_failed"),
			logging.Error(err),
		)
	}
}
