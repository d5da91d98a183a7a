package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"courtbook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SheetsClient applies booking changes to the external schedule sheet.
type SheetsClient interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
}

type syncTask struct {
	Type      string          `json:"type"`
	Booking   *models.Booking `json:"booking"`
	CreatedAt time.Time       `json:"created_at"`
	Attempts  int             `json:"attempts"`
}

// SyncWorker mirrors booking changes to Google Sheets. Tasks queue through
// Redis when available so they survive a restart, otherwise through an
// in-process channel. Exhausted tasks land in a dead-letter list.
type SyncWorker struct {
	sheets        SheetsClient
	redis         *redis.Client
	retry         RetryPolicy
	queue         chan syncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	logger        zerolog.Logger
}

func NewSyncWorker(sheets SheetsClient, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *SyncWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}

	return &SyncWorker{
		sheets:        sheets,
		redis:         redisClient,
		retry:         retry,
		queue:         make(chan syncTask, 128),
		redisQueueKey: "sheets:queue",
		deadLetterKey: "sheets:deadletter",
		pollInterval:  2 * time.Second,
		logger:        logger.With().Str("component", "sheets-worker").Logger(),
	}
}

// EnqueueBooking schedules a booking mirror task. Implements
// domain.SyncWorker.
func (w *SyncWorker) EnqueueBooking(ctx context.Context, taskType string, booking *models.Booking) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if booking == nil || booking.ID == "" {
		return errors.New("booking id is required")
	}

	task := syncTask{Type: taskType, Booking: booking, CreatedAt: time.Now()}

	if w.redis != nil {
		raw, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("encode sync task: %w", err)
		}
		if err := w.redis.LPush(ctx, w.redisQueueKey, raw).Err(); err == nil {
			return nil
		} else {
			w.logger.Warn().Err(err).Msg("redis enqueue failed, using in-process queue")
		}
	}

	select {
	case w.queue <- task:
		return nil
	default:
		return errors.New("sync queue is full")
	}
}

// Run consumes tasks until ctx is cancelled.
func (w *SyncWorker) Run(ctx context.Context) {
	w.logger.Info().Msg("sheets sync worker started")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("sheets sync worker stopped")
			return
		case task := <-w.queue:
			w.process(ctx, task)
		case <-ticker.C:
			w.drainRedis(ctx)
		}
	}
}

func (w *SyncWorker) drainRedis(ctx context.Context) {
	if w.redis == nil {
		return
	}
	for {
		raw, err := w.redis.RPop(ctx, w.redisQueueKey).Result()
		if errors.Is(err, redis.Nil) {
			return
		}
		if err != nil {
			w.logger.Error().Err(err).Msg("redis dequeue failed")
			return
		}

		var task syncTask
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			w.logger.Error().Err(err).Msg("drop malformed sync task")
			continue
		}
		w.process(ctx, task)
	}
}

func (w *SyncWorker) process(ctx context.Context, task syncTask) {
	var err error
	for attempt := 1; attempt <= w.retry.MaxRetries; attempt++ {
		err = w.sheets.UpsertBooking(ctx, task.Booking)
		if err == nil {
			return
		}

		w.logger.Warn().Err(err).
			Str("booking_id", task.Booking.ID).
			Int("attempt", attempt).
			Msg("sheet sync retry")

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.retry.NextDelay(attempt)):
		}
	}

	w.deadLetter(ctx, task, err)
}

func (w *SyncWorker) deadLetter(ctx context.Context, task syncTask, cause error) {
	w.logger.Error().Err(cause).
		Str("booking_id", task.Booking.ID).
		Msg("sheet sync exhausted retries")

	if w.redis == nil {
		return
	}
	task.Attempts = w.retry.MaxRetries
	raw, err := json.Marshal(task)
	if err != nil {
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, raw).Err(); err != nil {
		w.logger.Error().Err(err).Msg("dead-letter enqueue failed")
	}
}
