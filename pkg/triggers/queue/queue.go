// Package queue feeds external_event triggers from a Redis list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/barela/flowdeck/pkg/models"
)

// Evaluator dispatches event payloads to matching triggers. Satisfied by
// triggers.Registry.
type Evaluator interface {
	Evaluate(ctx context.Context, eventType models.TriggerType, payload map[string]any) ([]*models.Execution, error)
}

// Config declares the Redis connection and list to consume.
type Config struct {
	Addr     string
	Password string
	DB       int
	Queue    string
}

// ConfigFromMap builds a Config from an opaque settings map. Unknown keys are
// ignored; the queue name is required.
func ConfigFromMap(settings map[string]string) (Config, error) {
	cfg := Config{
		Addr:  settings["addr"],
		Queue: settings["queue"],
	}

	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}

	if cfg.Queue == "" {
		return Config{}, errors.New("queue name is required")
	}

	cfg.Password = settings["password"]

	if dbStr := settings["db"]; dbStr != "" {
		db, err := strconv.Atoi(dbStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid db value: %w", err)
		}

		cfg.DB = db
	}

	return cfg, nil
}

// Source pops JSON messages from a Redis list and evaluates them as
// external_event payloads.
type Source struct {
	config    Config
	evaluator Evaluator
	logger    *slog.Logger

	client redis.UniversalClient
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewSource(logger *slog.Logger, config Config, evaluator Evaluator) *Source {
	return &Source{
		config:    config,
		evaluator: evaluator,
		stopCh:    make(chan struct{}),
		logger: logger.With(
			"module", "queue_source",
			"queue", config.Queue,
		),
	}
}

// Start connects to Redis and begins consuming in a background goroutine.
func (s *Source) Start(ctx context.Context) error {
	s.client = redis.NewClient(&redis.Options{
		Addr:     s.config.Addr,
		Password: s.config.Password,
		DB:       s.config.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s.logger.InfoContext(ctx, "Connected to Redis", "addr", s.config.Addr, "db", s.config.DB)

	s.wg.Add(1)

	go s.consume(ctx)

	return nil
}

func (s *Source) consume(ctx context.Context) {
	defer s.wg.Done()

	s.logger.InfoContext(ctx, "Starting queue consumer")

	for {
		select {
		case <-s.stopCh:
			s.logger.InfoContext(ctx, "Queue consumer stopped")

			return
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Context cancelled, stopping queue consumer")

			return
		default:
			if err := s.processMessage(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Error processing message", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (s *Source) processMessage(ctx context.Context) error {
	result, err := s.client.BLPop(ctx, 1*time.Second, s.config.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	message := result[1]

	var payload map[string]any
	if err := json.Unmarshal([]byte(message), &payload); err != nil {
		payload = map[string]any{"message": message}
	}

	if payload["timestamp"] == nil {
		payload["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	}

	if _, err := s.evaluator.Evaluate(ctx, models.TriggerTypeExternalEvent, payload); err != nil {
		s.logger.ErrorContext(ctx, "Error evaluating external event", "error", err)
	}

	return nil
}

// Stop shuts the consumer down and closes the Redis client.
func (s *Source) Stop(ctx context.Context) error {
	close(s.stopCh)
	s.wg.Wait()

	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
		}
	}

	return nil
}
