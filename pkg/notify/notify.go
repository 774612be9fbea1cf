// Package notify delivers approval notifications. The Redis implementation
// pushes messages onto a list consumed by the platform's mailer workers;
// delivery is fire-and-forget from the flow engine's point of view.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// DefaultQueue is the Redis list the platform mailer consumes.
const DefaultQueue = "reqflow:notifications"

const connectTimeout = 5 * time.Second

// Message is the envelope pushed onto the queue.
type Message struct {
	Recipients []string  `json:"recipients"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// RedisNotifier implements flow.NotificationPort over a Redis list.
type RedisNotifier struct {
	client redis.UniversalClient
	queue  string
	logger *slog.Logger
}

// NewRedisNotifier connects to Redis and verifies the connection.
func NewRedisNotifier(ctx context.Context, logger *slog.Logger, addr, password string, db int, queue string) (*RedisNotifier, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	if queue == "" {
		queue = DefaultQueue
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	err := client.Ping(pingCtx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", addr, "db", db, "queue", queue)

	return &RedisNotifier{
		client: client,
		queue:  queue,
		logger: logger.With("module", "notify"),
	}, nil
}

// Send enqueues one notification. Recipients is a comma separated list, the
// format approval and notification nodes carry in their properties.
func (n *RedisNotifier) Send(ctx context.Context, recipients, subject, message string) error {
	msg := Message{
		Recipients: splitRecipients(recipients),
		Subject:    subject,
		Body:       message,
		EnqueuedAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	err = n.client.RPush(ctx, n.queue, payload).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}

	n.logger.DebugContext(ctx, "Notification enqueued",
		"recipients", len(msg.Recipients), "subject", subject)

	return nil
}

// Close releases the Redis connection.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

func splitRecipients(recipients string) []string {
	parts := strings.Split(recipients, ",")
	out := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}
