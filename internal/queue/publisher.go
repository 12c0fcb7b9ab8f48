package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/explanation-reservation/internal/utils"
)

// Publisher sends confirmation events to ConfirmedQueue. Each publish
// dials its own connection, so a broker outage only affects the message
// in flight.
type Publisher struct {
    url string
    log *logrus.Logger
    now func() time.Time
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string, log *logrus.Logger) *Publisher {
    if log == nil {
        log = logrus.StandardLogger()
    }
    return &Publisher{url: url, log: log, now: time.Now}
}

// SendExplanationConfirmation publishes a persistent confirmation message.
// Errors are logged and returned; callers treat them as non-fatal.
func (p *Publisher) SendExplanationConfirmation(ctx context.Context, phone, applicantName, scheduleDescription string) error {
    pub, err := p.publishing(ReservationConfirmedEvent{
        Phone:         phone,
        ApplicantName: applicantName,
        Schedule:      scheduleDescription,
        ConfirmedAt:   p.now().UTC().Format(time.RFC3339),
    })
    if err != nil {
        return err
    }
    entry := p.log.WithFields(logrus.Fields{"queue": ConfirmedQueue, "phone_hash": utils.HashPhone(phone)})

    conn, err := amqp.Dial(p.url)
    if err != nil {
        entry.WithError(err).Warn("rabbitmq dial failed")
        return fmt.Errorf("dial broker: %w", err)
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        entry.WithError(err).Warn("rabbitmq channel open failed")
        return fmt.Errorf("open channel: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := declare(ch); err != nil {
        entry.WithError(err).Warn("rabbitmq queue declare failed")
        return err
    }
    if err := ch.PublishWithContext(ctx, "", ConfirmedQueue, false, false, pub); err != nil {
        entry.WithError(err).Warn("rabbitmq publish failed")
        return fmt.Errorf("publish: %w", err)
    }
    entry.Debug("confirmation published")
    return nil
}

func (p *Publisher) publishing(ev ReservationConfirmedEvent) (amqp.Publishing, error) {
    body, err := json.Marshal(ev)
    if err != nil {
        return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
    }
    return amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    p.now().UTC(),
        Body:         body,
    }, nil
}

// declare makes sure the durable queue exists. It is idempotent.
func declare(ch *amqp.Channel) error {
    if _, err := ch.QueueDeclare(
        ConfirmedQueue,
        true,  // durable
        false, // autoDelete
        false, // exclusive
        false, // noWait
        nil,
    ); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    return nil
}
