package media

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

const stderrTailSize = 4096

// RunFFmpeg executes ffmpeg with args. Canceling ctx kills the process.
// Failures carry the last few KB of ffmpeg's stderr.
func RunFFmpeg(ctx context.Context, ffmpegPath string, args []string) error {
	tail := &tailWriter{max: stderrTailSize}
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	cmd.Stderr = tail

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if msg := tail.String(); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

// keeps the last max bytes written
type tailWriter struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	if over := len(w.buf) - w.max; over > 0 {
		w.buf = append(w.buf[:0], w.buf[over:]...)
	}
	return len(p), nil
}

func (w *tailWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return strings.TrimSpace(string(w.buf))
}
