package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gramwatch/internal/domain"
)

// SinkNameRollingFile is the dispatch key for the rolling file sink.
const SinkNameRollingFile = "rolling_file"

// RollingFileSink buffers payloads in memory and writes one file per
// rolling interval. A send whose wall-clock falls past the current
// window's boundary first flushes the buffer, then starts the next
// window. Close force-flushes whatever remains.
type RollingFileSink struct {
	dir      string
	interval time.Duration
	enc      Encoder
	now      func() time.Time

	mu          sync.Mutex
	buf         []Record
	windowStart time.Time

	logger zerolog.Logger
}

type RollingFileConfig struct {
	Dir             string
	IntervalMinutes int
	Encoder         Encoder
	// Now is the clock source; nil means time.Now. Split out for
	// deterministic tests.
	Now    func() time.Time
	Logger zerolog.Logger
}

func NewRollingFileSink(cfg RollingFileConfig) (*RollingFileSink, error) {
	if cfg.IntervalMinutes <= 0 {
		cfg.IntervalMinutes = 5
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create rolling sink directory: %w", err)
	}
	return &RollingFileSink{
		dir:      cfg.Dir,
		interval: time.Duration(cfg.IntervalMinutes) * time.Minute,
		enc:      cfg.Encoder,
		now:      cfg.Now,
		logger:   cfg.Logger.With().Str("component", "rolling_file_sink").Logger(),
	}, nil
}

func (s *RollingFileSink) Name() string { return SinkNameRollingFile }

func (s *RollingFileSink) Send(ctx context.Context, p *domain.SinkPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.now().UTC()
	window := t.Truncate(s.interval)

	if len(s.buf) > 0 && !window.Equal(s.windowStart) {
		if err := s.flushLocked(); err != nil {
			return err
		}
	}
	if len(s.buf) == 0 {
		s.windowStart = window
	}
	s.buf = append(s.buf, recordFrom(p))
	return nil
}

// Close flushes the remaining buffer.
func (s *RollingFileSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) == 0 {
		return nil
	}
	return s.flushLocked()
}

func (s *RollingFileSink) flushLocked() error {
	path := filepath.Join(s.dir, fmt.Sprintf("matches_%s%s",
		s.windowStart.Format("20060102T1504"), s.enc.Ext()))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create rolling file: %w", err)
	}
	defer f.Close()

	if err := s.enc.Encode(f, s.buf); err != nil {
		return fmt.Errorf("encode rolling batch: %w", err)
	}

	s.logger.Info().
		Str("path", path).
		Int("records", len(s.buf)).
		Msg("rolling batch flushed")
	s.buf = nil
	s.windowStart = time.Time{}
	return f.Close()
}
