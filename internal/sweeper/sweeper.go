package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/manpreetbhatti/codesync/backend/internal/session"
)

// Target is the room state the sweeper prunes; session.Manager implements it
type Target interface {
	Sweep(ctx context.Context, isLive func(connID string) bool) (int, error)
}

type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Minute,
		Timeout:  30 * time.Second,
	}
}

// Service periodically removes participants whose connection no longer
// exists on this process. Stored rooms outlive a restart; the registry does not.
type Service struct {
	target Target
	isLive func(connID string) bool
	config Config
	stop   chan struct{}
	wg     sync.WaitGroup

	stopOnce sync.Once
}

func New(target Target, isLive func(connID string) bool, config Config) *Service {
	return &Service{
		target: target,
		isLive: isLive,
		config: config,
		stop:   make(chan struct{}),
	}
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	log.Info().Dur("interval", s.config.Interval).Msg("sweeper started")
}

func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
		log.Info().Msg("sweeper stopped")
	})
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.SweepNow()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.SweepNow()
		}
	}
}

// Runs one pass and returns the number of participants removed
func (s *Service) SweepNow() int {
	ctx := context.Background()
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	removed, err := s.target.Sweep(ctx, s.isLive)
	if errors.Is(err, session.ErrListUnsupported) {
		log.Debug().Msg("sweep skipped: store cannot list rooms")
		return 0
	}
	if err != nil {
		log.Error().Err(err).Msg("sweep failed")
		return 0
	}

	if removed > 0 {
		log.Info().Int("removed", removed).Msg("swept stale participants")
	}
	return removed
}
