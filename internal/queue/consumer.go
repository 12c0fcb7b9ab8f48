package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/explanation-reservation/internal/utils"
)

// SMSSender delivers one text message to a phone number.
type SMSSender interface {
    Send(ctx context.Context, phone, text string) error
}

// FileSMSSender stands in for the SMS gateway by appending one line per
// message to a log file. The phone is masked in the file.
type FileSMSSender struct {
    path string
    mu   sync.Mutex
    now  func() time.Time
}

// NewFileSMSSender writes to path, creating parent directories on demand.
// An empty path defaults to logs/sms.log.
func NewFileSMSSender(path string) *FileSMSSender {
    if path == "" {
        path = filepath.Join("logs", "sms.log")
    }
    return &FileSMSSender{path: path, now: time.Now}
}

// Send appends the message to the log file.
func (s *FileSMSSender) Send(_ context.Context, phone, text string) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open sms log: %w", err)
    }
    defer f.Close()

    text = strings.ReplaceAll(text, "\n", " ")
    line := fmt.Sprintf("[%s] SMS | to=%s | %s\n", s.now().UTC().Format(time.RFC3339), utils.MaskPhone(phone), text)
    if _, err := f.WriteString(line); err != nil {
        return fmt.Errorf("write sms log: %w", err)
    }
    return nil
}

// Consumer reads ConfirmedQueue and sends one SMS per message.
type Consumer struct {
    url        string
    sender     SMSSender
    log        *logrus.Logger
    maxBackoff time.Duration
}

// NewConsumer builds a Consumer for the broker at url.
func NewConsumer(url string, sender SMSSender, log *logrus.Logger) *Consumer {
    if log == nil {
        log = logrus.StandardLogger()
    }
    return &Consumer{url: url, sender: sender, log: log, maxBackoff: 30 * time.Second}
}

// Run connects, consumes and reconnects with exponential backoff until
// ctx is cancelled. It returns ctx.Err() on shutdown.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.url)
        if err != nil {
            c.log.WithError(err).WithField("retry_in", backoff.String()).Warn("sms-consumer: broker dial failed")
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < c.maxBackoff {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = c.consume(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.log.WithError(err).Warn("sms-consumer: consume loop ended, reconnecting")
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(20, 0, false); err != nil {
        c.log.WithError(err).Warn("sms-consumer: set QoS failed")
    }
    if err := declare(ch); err != nil {
        return err
    }
    msgs, err := ch.Consume(ConfirmedQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    c.log.WithField("queue", ConfirmedQueue).Info("sms-consumer: consuming")
    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := c.handleMessage(ctx, d.Body); err != nil {
                c.log.WithError(err).Error("sms-consumer: handle message failed")
                _ = d.Nack(false, false) // drop rather than loop on a poison message
                continue
            }
            _ = d.Ack(false)
        }
    }
}

func (c *Consumer) handleMessage(ctx context.Context, body []byte) error {
    var ev ReservationConfirmedEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Phone == "" {
        return errors.New("event has no phone")
    }
    if err := c.sender.Send(ctx, ev.Phone, ConfirmationText(ev)); err != nil {
        return fmt.Errorf("send sms: %w", err)
    }
    c.log.WithField("phone_hash", utils.HashPhone(ev.Phone)).Debug("sms-consumer: confirmation sent")
    return nil
}

// ConfirmationText renders the SMS body for ev.
func ConfirmationText(ev ReservationConfirmedEvent) string {
    return fmt.Sprintf("%s, your reservation for %s is confirmed.", ev.ApplicantName, ev.Schedule)
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
