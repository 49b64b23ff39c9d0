package browse

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Janitor periodically evicts idle browse sessions
type Janitor struct {
	registry *Registry
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewJanitor creates a new session janitor
func NewJanitor(registry *Registry, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{
		registry: registry,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background worker
func (j *Janitor) Start() {
	log.Info().Dur("interval", j.interval).Msg("Starting browse session janitor...")
	go j.loop()
}

// Stop gracefully stops the background worker
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() {
		log.Info().Msg("Stopping browse session janitor...")
		close(j.stopCh)
	})
}

func (j *Janitor) loop() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.sweep()
		case <-j.stopCh:
			return
		}
	}
}

func (j *Janitor) sweep() {
	n := j.registry.EvictIdle()
	if n > 0 {
		log.Info().Int("count", n).Int("open", j.registry.Len()).Msg("Evicted idle browse sessions")
	}
}
