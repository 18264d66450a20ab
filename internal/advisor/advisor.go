// Package advisor derives a buy/sell/hold signal from long and short
// moving averages over the same rolling rate history the trading engine
// keeps. It shares the statistics tracker but is materially simpler: one
// rate sample in, one signal out.
package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/alejandrodnm/ladderbot/internal/domain"
	"github.com/alejandrodnm/ladderbot/internal/ports"
)

const (
	// actionFile records the last action and the date it changed;
	// adviceFile holds the latest human-readable advisory line.
	actionFile = "advisor.action"
	adviceFile = "advisor.txt"
)

// Advisor tracks historical rates and produces the advisory signal.
type Advisor struct {
	store     ports.StatsStorage
	shortDays int
	longDays  int
	dataDir   string
}

// New builds an Advisor writing its text outputs under dataDir.
func New(store ports.StatsStorage, shortDays, longDays int, dataDir string) *Advisor {
	return &Advisor{
		store:     store,
		shortDays: shortDays,
		longDays:  longDays,
		dataDir:   dataDir,
	}
}

// Run folds one rate sample into the history and re-derives the signal.
// Same-day samples merge by count-weighted average. The action file is
// rewritten only when the action changes; the advice file always
// carries the latest line.
func (a *Advisor) Run(ctx context.Context, rate float64) (domain.Advisory, error) {
	if rate <= 0 {
		return domain.Advisory{}, fmt.Errorf("advisor.Run: non-positive rate %v", rate)
	}

	history, err := a.store.LoadHistory(ctx)
	if err != nil {
		return domain.Advisory{}, fmt.Errorf("advisor.Run: load history: %w", err)
	}

	day := domain.DayOrdinal(time.Now())
	history.AddDay(domain.DailyRecord{Day: day, Rate: rate, Price: rate, Count: 1})
	merged, _ := history.Get(day)
	if err := a.store.SaveDay(ctx, merged); err != nil {
		return domain.Advisory{}, fmt.Errorf("advisor.Run: save day: %w", err)
	}

	shortMA, okShort := history.MovingAverage(a.shortDays)
	longMA, okLong := history.MovingAverage(a.longDays)
	action := domain.AdvisoryHold
	if okShort && okLong {
		action = domain.DeriveAdvisory(shortMA, longMA)
	}

	now := time.Now().UTC()
	text := fmt.Sprintf("%s %s rate=%.2f short(%d)=%.2f long(%d)=%.2f",
		action, now.Format("2006-01-02"), rate, a.shortDays, shortMA, a.longDays, longMA)
	if !okShort || !okLong {
		text = fmt.Sprintf("%s %s rate=%.2f averages warming up (%d of %d days)",
			action, now.Format("2006-01-02"), rate, history.Len(), a.longDays)
	}
	advisory := domain.Advisory{
		Action:    action,
		ChangedAt: now,
		Text:      text,
	}

	prev, havePrev, err := a.store.LoadAdvisory(ctx)
	if err != nil {
		return domain.Advisory{}, fmt.Errorf("advisor.Run: load advisory: %w", err)
	}
	if havePrev && prev.Action == action {
		// action unchanged: keep the original change date
		advisory.ChangedAt = prev.ChangedAt
	}

	if err := a.store.SaveAdvisory(ctx, advisory); err != nil {
		return domain.Advisory{}, fmt.Errorf("advisor.Run: save advisory: %w", err)
	}
	if err := a.writeFiles(advisory, !havePrev || prev.Action != action); err != nil {
		return domain.Advisory{}, err
	}

	slog.Info("advisor: signal derived",
		"action", action, "rate", rate, "short_ma", shortMA, "long_ma", longMA, "days", history.Len())
	return advisory, nil
}

// writeFiles persists the two small text outputs.
func (a *Advisor) writeFiles(adv domain.Advisory, actionChanged bool) error {
	if actionChanged {
		line := fmt.Sprintf("%s %s\n", adv.Action, adv.ChangedAt.Format("2006-01-02"))
		if err := os.WriteFile(filepath.Join(a.dataDir, actionFile), []byte(line), 0o644); err != nil {
			return fmt.Errorf("advisor.writeFiles: action file: %w", err)
		}
	}
	if err := os.WriteFile(filepath.Join(a.dataDir, adviceFile), []byte(adv.Text+"\n"), 0o644); err != nil {
		return fmt.Errorf("advisor.writeFiles: advice file: %w", err)
	}
	return nil
}
