package health

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/arpg-timeline/discord-season-notify/internal/database"
)

// Aggregator holds API health stats in memory to reduce database writes.
type Aggregator struct {
	repo               *database.Repository
	serviceName        string
	totalRequests      atomic.Uint64
	successfulRequests atomic.Uint64
}

// NewAggregator creates a new health aggregator.
func NewAggregator(repo *database.Repository, serviceName string) *Aggregator {
	return &Aggregator{
		repo:        repo,
		serviceName: serviceName,
	}
}

// RecordCall increments the in-memory counters for an API call. This is non-blocking and fast.
func (a *Aggregator) RecordCall(success bool) {
	a.totalRequests.Add(1)
	if success {
		a.successfulRequests.Add(1)
	}
}

// FlushToDB writes the aggregated counts to the database and resets the counters.
func (a *Aggregator) FlushToDB() {
	total := a.totalRequests.Swap(0)
	successful := a.successfulRequests.Swap(0)

	if total == 0 {
		return // No activity to report
	}

	if err := a.repo.UpdateAPIHealthBulk(a.serviceName, total, successful); err != nil {
		log.Error().Err(err).Str("service", a.serviceName).Msg("Failed to flush API health stats to DB")
	}
}

// Start starts a background goroutine to periodically flush stats to the database.
func (a *Aggregator) Start(interval time.Duration) {
	log.Info().Str("service", a.serviceName).Dur("interval", interval).Msg("Health aggregator started")
	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			a.FlushToDB()
		}
	}()
}
