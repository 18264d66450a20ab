package ports

import (
	"context"

	"github.com/alejandrodnm/ladderbot/internal/domain"
)

// StatsStorage persists the rolling statistics tracker and the advisory
// state. The store is written after every update cycle and reloaded at
// startup.
type StatsStorage interface {
	// LoadHistory rebuilds the bounded day series from disk.
	LoadHistory(ctx context.Context) (*domain.History, error)

	// SaveDay upserts one daily record and prunes days beyond the
	// retention window.
	SaveDay(ctx context.Context, rec domain.DailyRecord) error

	// SaveAdvisory persists the advisory action and its change date.
	SaveAdvisory(ctx context.Context, adv domain.Advisory) error

	// LoadAdvisory returns the persisted advisory state, with ok=false
	// when none has been stored yet.
	LoadAdvisory(ctx context.Context) (domain.Advisory, bool, error)

	// Close releases the underlying database cleanly.
	Close() error
}
