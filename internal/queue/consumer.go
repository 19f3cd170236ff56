package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/rs/zerolog/log"
)

// DefaultActivityLog is where StartActivityConsumer appends events.
var DefaultActivityLog = filepath.Join("logs", "mic_activity.log")

// StartActivityConsumer connects to RabbitMQ, declares the mic.activity
// queue (durable) and appends every message to logPath in a single-line,
// human-friendly format.  It reconnects with exponential backoff until ctx
// is cancelled, which is the only way it returns.
func StartActivityConsumer(ctx context.Context, url, logPath string) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(url)
        if err != nil {
            log.Warn().Err(err).Str("module", "activity-consumer").Dur("retry_in", backoff).Msg("failed to dial broker")
            select {
            case <-ctx.Done():
                return ctx.Err()
            case <-time.After(backoff):
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = consumeLoop(ctx, conn, logPath)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.Warn().Err(err).Str("module", "activity-consumer").Msg("consume loop ended; reconnecting")
        select {
        case <-ctx.Done():
            return ctx.Err()
        case <-time.After(2 * time.Second):
        }
    }
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, logPath string) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.Warn().Err(err).Str("module", "activity-consumer").Msg("set QoS failed")
    }
    if _, err := ch.QueueDeclare(ActivityQueueName, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(ActivityQueueName, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := handleMessage(logPath, d.Body); err != nil {
                log.Error().Err(err).Str("module", "activity-consumer").Msg("handle message failed")
                _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

func handleMessage(logPath string, body []byte) error {
    var ev ActivityEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    // Ensure logs directory exists
    if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(FormatActivity(ev)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// FormatActivity renders one activity log line, newline included.
func FormatActivity(ev ActivityEvent) string {
    current := "none"
    if ev.Current != nil {
        current = fmt.Sprintf("%d", *ev.Current)
    }
    line := fmt.Sprintf("[%s] %s | mic_id=%d | mic=%q | actor_id=%d",
        ev.At.UTC().Format(time.RFC3339), ev.Action, ev.MicID, ev.MicName, ev.ActorID)
    if ev.PerformerID != 0 {
        line += fmt.Sprintf(" | performer_id=%d | performer=%q", ev.PerformerID, ev.Performer)
    }
    return line + fmt.Sprintf(" | slots_filled=%d | current=%s\n", ev.SlotsFilled, current)
}
