// Package convert runs conversions with ffmpeg and implements the worker handler
package convert

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cuongbtq/media-conversor/internal/domain"
)

var commandContext = exec.CommandContext

// stderrTailSize bounds the ffmpeg diagnostics carried into the failure detail
const stderrTailSize = 512

// FFmpeg invokes the ffmpeg binary
type FFmpeg struct {
	binary string
	logger *slog.Logger
}

// NewFFmpeg creates a converter using binary, "ffmpeg" when empty
func NewFFmpeg(binary string, logger *slog.Logger) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{binary: binary, logger: logger}
}

// Check verifies that the binary can be executed
func (f *FFmpeg) Check(ctx context.Context) error {
	if err := commandContext(ctx, f.binary, "-version").Run(); err != nil {
		return fmt.Errorf("ffmpeg is not installed or not executable (%s): %w", f.binary, err)
	}
	return nil
}

// Convert transcodes inputPath into outputPath; the output format follows the output extension.
// Failures are returned as *domain.ConversionError.
func (f *FFmpeg) Convert(ctx context.Context, inputPath, outputPath string) error {
	args := []string{"-hide_banner", "-nostdin", "-y", "-i", inputPath, outputPath}
	cmd := commandContext(ctx, f.binary, args...) //nolint:gosec

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	f.logger.Debug("Running ffmpeg",
		slog.String("input", inputPath),
		slog.String("output", outputPath),
	)

	started := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return domain.NewConversionError("ffmpeg interrupted", ctx.Err())
		}
		return domain.NewConversionError(stderrTail(stderr.String()), err)
	}

	f.logger.Debug("ffmpeg finished",
		slog.String("output", outputPath),
		slog.Duration("duration", time.Since(started)),
	)
	return nil
}

func stderrTail(stderr string) string {
	tail := strings.TrimSpace(stderr)
	if len(tail) > stderrTailSize {
		cut := len(tail) - stderrTailSize
		// never split a multi-byte rune
		for cut < len(tail) && !utf8.RuneStart(tail[cut]) {
			cut++
		}
		tail = "..." + tail[cut:]
	}
	if tail == "" {
		return "ffmpeg exited with an error"
	}
	return tail
}
