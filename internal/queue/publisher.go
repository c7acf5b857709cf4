package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "log/slog"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/easel-entry/internal/model"
)

// Publisher sends entry events to RabbitMQ.  Each publish opens its own
// connection; entries are rare (a handful per competition) so there is no
// pool to manage.  Failures are logged and returned so the caller can ignore
// them without interrupting the webhook response.
type Publisher struct {
    url     string
    timeout time.Duration
    logger  *slog.Logger
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string, logger *slog.Logger) *Publisher {
    if logger == nil {
        logger = slog.Default()
    }
    return &Publisher{url: url, timeout: 5 * time.Second, logger: logger}
}

// PublishEntered publishes a ParticipantEnteredEvent as a persistent message.
func (p *Publisher) PublishEntered(ctx context.Context, participant model.Participant) error {
    body, err := json.Marshal(NewParticipantEnteredEvent(participant))
    if err != nil {
        return fmt.Errorf("marshal event: %w", err)
    }

    conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(p.timeout)})
    if err != nil {
        p.logger.WarnContext(ctx, "rabbitmq dial failed", "error", err)
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        p.logger.WarnContext(ctx, "rabbitmq channel open failed", "error", err)
        return err
    }
    defer func() { _ = ch.Close() }()

    if err := declare(ch); err != nil {
        p.logger.WarnContext(ctx, "rabbitmq queue declare failed", "error", err)
        return err
    }

    ctx, cancel := context.WithTimeout(ctx, p.timeout)
    defer cancel()
    err = ch.PublishWithContext(ctx,
        "",           // default exchange
        EnteredQueue, // routing key = queue name
        false,        // mandatory
        false,        // immediate
        amqp.Publishing{
            ContentType:  "application/json",
            DeliveryMode: amqp.Persistent,
            Timestamp:    time.Now().UTC(),
            Body:         body,
        },
    )
    if err != nil {
        p.logger.WarnContext(ctx, "rabbitmq publish failed", "error", err)
        return err
    }
    return nil
}

func declare(ch *amqp.Channel) error {
    _, err := ch.QueueDeclare(
        EnteredQueue, // name
        true,         // durable
        false,        // autoDelete
        false,        // exclusive
        false,        // noWait
        nil,          // args
    )
    return err
}
