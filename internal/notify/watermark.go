package notify

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/recach/recach/internal/events"
	"github.com/recach/recach/internal/storage"
)

// Watermark is the highest caret notification id the viewer has seen. It is
// persisted under storage.KeyCaretSeenID and only moves forward.
type Watermark struct {
	backend storage.Backend
	bus     *events.Bus
	logger  zerolog.Logger

	mu sync.Mutex
}

// NewWatermark creates a watermark over backend
func NewWatermark(backend storage.Backend, bus *events.Bus, logger zerolog.Logger) *Watermark {
	return &Watermark{
		backend: backend,
		bus:     bus,
		logger:  logger.With().Str("component", "watermark").Logger(),
	}
}

// Seen returns the stored watermark. Missing or unreadable values read as 0.
func (w *Watermark) Seen(ctx context.Context) int64 {
	raw, ok, err := w.backend.Get(ctx, storage.KeyCaretSeenID)
	if err != nil {
		w.logger.Warn().Err(err).Msg("watermark read failed")
		return 0
	}
	if !ok {
		return 0
	}

	seen, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		w.logger.Debug().Str("value", raw).Msg("ignoring malformed watermark")
		return 0
	}
	return seen
}

// Advance raises the watermark to maxID and publishes events.CaretUpdated.
// It reports whether the watermark moved; a maxID at or below the current
// value is a no-op.
func (w *Watermark) Advance(ctx context.Context, maxID int64) (bool, error) {
	w.mu.Lock()
	seen := w.Seen(ctx)
	if maxID <= seen {
		w.mu.Unlock()
		return false, nil
	}
	if err := w.backend.Set(ctx, storage.KeyCaretSeenID, strconv.FormatInt(maxID, 10)); err != nil {
		w.mu.Unlock()
		return false, fmt.Errorf("failed to advance watermark: %w", err)
	}
	w.mu.Unlock()

	w.logger.Debug().Int64("from", seen).Int64("to", maxID).Msg("watermark advanced")
	w.bus.Publish(events.CaretUpdated)
	return true, nil
}
