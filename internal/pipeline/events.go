package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/aftermath/internal/domain"
)

// publishEvent encodes pe and publishes it on the pipeline channel. A nil
// bus is a no-op.
func publishEvent(ctx context.Context, bus domain.EventBus, logger *slog.Logger, pe domain.PipelineEvent) {
	if bus == nil {
		return
	}
	if pe.Timestamp.IsZero() {
		pe.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(pe)
	if err != nil {
		logger.WarnContext(ctx, "pipeline: encode event", slog.String("error", err.Error()))
		return
	}
	if err := bus.Publish(ctx, domain.PipelineChannel, payload); err != nil {
		logger.WarnContext(ctx, "pipeline: publish failed",
			slog.String("kind", pe.Kind),
			slog.String("error", err.Error()),
		)
	}
}
