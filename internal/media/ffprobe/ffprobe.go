// Package ffprobe resolves media durations for the session controller by
// shelling out to ffprobe. The returned handle keeps the underlying file
// open for the lifetime of the media session.
package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

type Prober struct {
	binary string
}

func New(binary string) *Prober {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "ffprobe"
	}
	return &Prober{binary: bin}
}

const maxProbeTimeout = 30 * time.Second

// Handle is an open media source with a resolved duration. Release is
// idempotent.
type Handle struct {
	duration time.Duration
	file     *os.File
}

func (h *Handle) Duration() time.Duration { return h.duration }

func (h *Handle) Release() {
	if h.file != nil {
		_ = h.file.Close()
		h.file = nil
	}
}

// Resolve opens the file at path and probes its container duration.
func (p *Prober) Resolve(ctx context.Context, path string) (*Handle, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("media path is required")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open media: %w", err)
	}

	duration, err := p.probeDuration(ctx, path)
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	return &Handle{duration: duration, file: file}, nil
}

func (p *Prober) probeDuration(ctx context.Context, path string) (time.Duration, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxProbeTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return 0, fmt.Errorf("ffprobe failed: %w", err)
		}
		return 0, fmt.Errorf("ffprobe failed: %w: %s", err, msg)
	}

	return parseDuration(stdout.Bytes())
}

// probePayload is the subset of ffprobe JSON output we parse.
type probePayload struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseDuration(data []byte) (time.Duration, error) {
	var payload probePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, fmt.Errorf("ffprobe output parse failed: %w", err)
	}
	if payload.Format.Duration == "" {
		return 0, errors.New("ffprobe reported no duration")
	}
	seconds, err := strconv.ParseFloat(payload.Format.Duration, 64)
	if err != nil || seconds <= 0 {
		return 0, fmt.Errorf("ffprobe reported invalid duration %q", payload.Format.Duration)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
