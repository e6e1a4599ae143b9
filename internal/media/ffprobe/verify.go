package ffprobe

import (
	"context"
	"errors"
	"math"

	"dashjoin/internal/services"
)

var (
	errNoVideo    = errors.New("no video stream")
	errNoDuration = errors.New("no playable duration")
)

// Verifier checks merged output with ffprobe.
type Verifier struct {
	Binary string
}

// Verify fails when the file cannot be probed, carries no video stream, or
// reports a non-positive duration.
func (v Verifier) Verify(ctx context.Context, path string) error {
	result, err := Inspect(ctx, v.Binary, path)
	if err != nil {
		return err
	}
	if result.VideoStreamCount() == 0 {
		return services.Wrap(services.ErrValidation, "ffprobe", "verify", path, errNoVideo)
	}
	if d := result.DurationSeconds(); math.IsNaN(d) || d <= 0 {
		return services.Wrap(services.ErrValidation, "ffprobe", "verify", path, errNoDuration)
	}
	return nil
}
