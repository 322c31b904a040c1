package stream

import (
	"context"
	"time"
)

// FrameSource produces the payload of one frame
type FrameSource interface {
	Frame(ctx context.Context) []byte
}

// EmitFunc delivers a frame to the client. An error ends the session.
type EmitFunc func(payload []byte) error

// Run emits one frame immediately and then one per interval until ctx is
// cancelled or emit fails. The ticker is released on every return path and
// no frame is emitted once ctx is done.
func Run(ctx context.Context, interval time.Duration, source FrameSource, emit EmitFunc) error {
	if err := emitFrame(ctx, source, emit); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := emitFrame(ctx, source, emit); err != nil {
				return err
			}
		}
	}
}

func emitFrame(ctx context.Context, source FrameSource, emit EmitFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload := source.Frame(ctx)
	// the read may have outlived the connection
	if err := ctx.Err(); err != nil {
		return err
	}
	return emit(payload)
}
