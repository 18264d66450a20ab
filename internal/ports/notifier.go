package ports

import (
	"context"

	"github.com/alejandrodnm/ladderbot/internal/domain"
)

// Notifier reports engine activity to the operator.
type Notifier interface {
	// NotifyCycle presents the summary of one control-loop iteration.
	NotifyCycle(ctx context.Context, report domain.CycleReport) error

	// NotifyStartup presents the pre-existing open orders found during
	// startup reconciliation.
	NotifyStartup(ctx context.Context, summary domain.OpenOrdersSummary) error

	// NotifyFatal alerts the operator about a non-recoverable condition
	// before the process deactivates.
	NotifyFatal(ctx context.Context, subject string, err error) error
}
