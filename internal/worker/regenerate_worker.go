package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"closeout/internal/dto"
	"closeout/internal/service"

	"github.com/rs/zerolog"
)

// RegenerateWorker replays queued batch regenerations through the same
// service the synchronous endpoint and the CLI use.
type RegenerateWorker struct {
	regeneration service.RegenerationService
	logger       zerolog.Logger
}

func NewRegenerateWorker(regeneration service.RegenerationService, logger zerolog.Logger) *RegenerateWorker {
	return &RegenerateWorker{regeneration: regeneration, logger: logger}
}

func (w *RegenerateWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var opts dto.RegenerateOptions
	if err := json.Unmarshal(raw, &opts); err != nil {
		return fmt.Errorf("unmarshal regenerate options: %w", err)
	}

	stats, err := w.regeneration.RegenerateBatch(ctx, opts)
	if err != nil {
		return fmt.Errorf("batch regeneration: %w", err)
	}

	w.logger.Info().
		Int("total", stats.TotalSessions).
		Int("processed", stats.Processed).
		Int("regenerated", stats.Regenerated).
		Int("errors", len(stats.Errors)).
		Msg("queued batch regeneration finished")
	return nil
}
