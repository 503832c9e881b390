package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

const (
	extractTimeout = 60 * time.Second

	// MaxVideoBytes caps extractor input; MaxAudioBytes matches the LLM
	// transcription limit so extracted audio is always sendable.
	MaxVideoBytes = 100 * 1024 * 1024
	MaxAudioBytes = 25 * 1024 * 1024
)

var (
	// ErrNoAudio means the video has no audio track, distinct from a
	// generic extraction failure.
	ErrNoAudio  = errors.New("video has no audio track")
	ErrTooLarge = errors.New("media payload too large")
)

// Extractor shells out to FFmpeg to pull a mono 16 kHz 64 kbps MP3 track
// out of a video.
type Extractor struct {
	ffmpegPath string
	tempDir    string
}

func NewExtractor(ffmpegPath string) *Extractor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Extractor{ffmpegPath: ffmpegPath, tempDir: os.TempDir()}
}

// ExtractAudio writes the video to a scoped temp file, runs the
// transcoder, and reads the result back. Both temp files are removed on
// every exit path.
func (e *Extractor) ExtractAudio(ctx context.Context, video []byte) ([]byte, error) {
	if len(video) > MaxVideoBytes {
		return nil, fmt.Errorf("%w: video is %s, limit is %s", ErrTooLarge,
			humanize.IBytes(uint64(len(video))), humanize.IBytes(MaxVideoBytes))
	}

	dir, err := os.MkdirTemp(e.tempDir, "az-wabot-extract-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			logrus.WithError(rmErr).Warnf("[MEDIA] Failed to clean temp dir %s", dir)
		}
	}()

	inPath := filepath.Join(dir, "input.video")
	outPath := filepath.Join(dir, "output.mp3")
	if err := os.WriteFile(inPath, video, 0o600); err != nil {
		return nil, fmt.Errorf("write temp video: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	cmd := exec.CommandContext(callCtx, e.ffmpegPath,
		"-i", inPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-b:a", "64k",
		"-f", "mp3",
		"-y", outPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if isNoAudioStderr(stderr.String()) {
			return nil, ErrNoAudio
		}
		return nil, fmt.Errorf("ffmpeg failed: %w: %s", err, lastLine(stderr.String()))
	}

	audio, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read extracted audio: %w", err)
	}
	// FFmpeg happily produces an empty file for audio-less containers it
	// does not reject outright.
	if len(audio) == 0 {
		return nil, ErrNoAudio
	}
	if len(audio) > MaxAudioBytes {
		return nil, fmt.Errorf("%w: extracted audio is %s, limit is %s", ErrTooLarge,
			humanize.IBytes(uint64(len(audio))), humanize.IBytes(MaxAudioBytes))
	}
	return audio, nil
}

// isNoAudioStderr spots the transcoder diagnostics that mean the input
// container carries no audio stream.
func isNoAudioStderr(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "does not contain any stream") ||
		strings.Contains(s, "output file does not contain any stream") ||
		strings.Contains(s, "stream map '0:a' matches no streams") ||
		strings.Contains(s, "no audio stream")
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
