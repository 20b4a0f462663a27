package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
)

// Sound plays a local audio file for standout deals. The file is decoded
// once at construction and buffered in memory so every alert plays without
// touching the disk.
type Sound struct {
	buffer *beep.Buffer
	logger *slog.Logger

	mu      sync.Mutex
	playing bool
}

var speakerInit sync.Once

// NewSound loads and buffers the alert sound. Supported formats are mp3
// and wav, decided by file extension.
func NewSound(path string, logger *slog.Logger) (*Sound, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening sound file: %w", err)
	}
	defer f.Close()

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch ext := filepath.Ext(path); ext {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".wav":
		streamer, format, err = wav.Decode(f)
	default:
		return nil, fmt.Errorf("unsupported sound format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	defer streamer.Close()

	buffer := beep.NewBuffer(format)
	buffer.Append(streamer)

	var initErr error
	speakerInit.Do(func() {
		initErr = speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10))
	})
	if initErr != nil {
		return nil, fmt.Errorf("initializing speaker: %w", initErr)
	}

	return &Sound{buffer: buffer, logger: logger}, nil
}

// Play starts the alert sound without blocking the caller. Overlapping
// alerts collapse into one playback.
func (s *Sound) Play(ctx context.Context) {
	s.mu.Lock()
	if s.playing {
		s.mu.Unlock()
		return
	}
	s.playing = true
	s.mu.Unlock()

	streamer := s.buffer.Streamer(0, s.buffer.Len())
	speaker.Play(beep.Seq(streamer, beep.Callback(func() {
		s.mu.Lock()
		s.playing = false
		s.mu.Unlock()
	})))

	s.logger.DebugContext(ctx, "alert sound playing")
}
