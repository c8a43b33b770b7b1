package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/zhouzirui/iaengine/backend/internal/metrics"
	"github.com/zhouzirui/iaengine/backend/pkg/logger"
)

// Sink receives the frames of one exchange in order. Implementations write to the client.
type Sink interface {
	// Fragment forwards one piece of generated text.
	Fragment(text string) error
	// Fail reports an upstream failure after streaming began.
	Fail(err error) error
	// Done ends the frame sequence.
	Done() error
}

// Pump forwards every fragment of stream to sink and closes the stream on return.
// A mid-stream upstream failure becomes Fail followed by Done. If ctx ends (client gone)
// nothing more is written. It returns the outcome label recorded in metrics.
func Pump(ctx context.Context, stream *Stream, sink Sink) (string, error) {
	defer stream.Close()

	fragments := 0
	defer func() {
		metrics.ChatFragments.Add(float64(fragments))
	}()

	for {
		if ctx.Err() != nil {
			return finish(metrics.OutcomeClientGone), ctx.Err()
		}

		fragment, err := stream.Next()
		if errors.Is(err, io.EOF) {
			if err := sink.Done(); err != nil {
				return finish(metrics.OutcomeClientGone), fmt.Errorf("write end of stream: %w", err)
			}
			return finish(metrics.OutcomeCompleted), nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return finish(metrics.OutcomeClientGone), ctx.Err()
			}
			slog.WarnContext(ctx, "upstream failed mid-stream", "model", stream.Model.UpstreamID, "fragments", fragments, logger.Err(err))
			if failErr := sink.Fail(err); failErr != nil {
				return finish(metrics.OutcomeClientGone), fmt.Errorf("write stream error: %w", failErr)
			}
			if doneErr := sink.Done(); doneErr != nil {
				return finish(metrics.OutcomeClientGone), fmt.Errorf("write end of stream: %w", doneErr)
			}
			return finish(metrics.OutcomeStreamFailed), err
		}

		if err := sink.Fragment(fragment); err != nil {
			return finish(metrics.OutcomeClientGone), fmt.Errorf("write fragment: %w", err)
		}
		fragments++
	}
}

func finish(outcome string) string {
	metrics.ChatExchanges.WithLabelValues(outcome).Inc()
	return outcome
}
