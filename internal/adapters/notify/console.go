package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/ladderbot/internal/domain"
	"github.com/alejandrodnm/ladderbot/internal/ports"
)

// Console implements ports.Notifier on stdout.
type Console struct {
	out   io.Writer
	table bool
}

var _ ports.Notifier = (*Console)(nil)

// NewConsole creates a notifier writing to stdout. With table enabled,
// cycle reports render as a full table instead of a compact line.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// NotifyCycle prints the cycle summary in the configured mode.
func (c *Console) NotifyCycle(_ context.Context, r domain.CycleReport) error {
	if c.table {
		c.printCycleTable(r)
	} else {
		c.printCycleCompact(r)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(c.out, "  ! %s\n", w)
	}
	return nil
}

// printCycleCompact keeps the per-tick output to one line.
func (c *Console) printCycleCompact(r domain.CycleReport) {
	now := time.Now().Format("15:04:05")
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s bid:%.1f bal:%.6f lev:%.1f mm:%.2f q:%d sells:%d",
		now, r.Pair, r.Price, r.MarginBalance, r.Leverage, r.Mayer, r.Quota, r.SellRungs)
	if r.BuyOrderOpen {
		sb.WriteString(" buy:open")
	} else {
		sb.WriteString(" buy:-")
	}
	if r.Hibernating {
		sb.WriteString(" HIBERNATING")
	}
	if r.BuyFills+r.SellFills > 0 {
		fmt.Fprintf(&sb, " fills:%db/%ds", r.BuyFills, r.SellFills)
	}
	fmt.Fprintln(c.out, sb.String())
}

func (c *Console) printCycleTable(r domain.CycleReport) {
	fmt.Fprintf(c.out, "\n[%s] %s cycle\n", time.Now().Format("15:04:05"), r.Pair)

	table := tablewriter.NewWriter(c.out)
	table.Header("Bid", "Balance", "Leverage", "Mayer", "Funding", "Quota", "Sells", "Buy", "Hibernating", "Fills", "Placed")

	buyState := "-"
	if r.BuyOrderOpen {
		buyState = "open"
	}
	table.Append(
		fmt.Sprintf("%.1f", r.Price),
		fmt.Sprintf("%.6f", r.MarginBalance),
		fmt.Sprintf("%.1fx", r.Leverage),
		fmt.Sprintf("%.2f", r.Mayer),
		fmt.Sprintf("%.4f%%", r.FundingRate*100),
		fmt.Sprintf("%d", r.Quota),
		fmt.Sprintf("%d", r.SellRungs),
		buyState,
		fmt.Sprintf("%v", r.Hibernating),
		fmt.Sprintf("%db/%ds", r.BuyFills, r.SellFills),
		fmt.Sprintf("%d", r.OrdersPlaced),
	)
	table.Render()
}

// NotifyStartup prints the pre-existing orders found at startup.
func (c *Console) NotifyStartup(_ context.Context, s domain.OpenOrdersSummary) error {
	fmt.Fprintf(c.out, "\nfound %d open buy and %d open sell orders (buy value %.1f, sell value %.1f)\n",
		len(s.BuyOrders), len(s.SellOrders), s.TotalBuyOrderValue, s.TotalSellOrderValue)

	table := tablewriter.NewWriter(c.out)
	table.Header("Side", "Price", "Amount", "Created")
	for _, o := range s.SellOrders {
		table.Append(string(o.Side), fmt.Sprintf("%.1f", o.Price), fmt.Sprintf("%.0f", o.Amount), o.CreatedAt.Format(time.RFC3339))
	}
	for _, o := range s.BuyOrders {
		table.Append(string(o.Side), fmt.Sprintf("%.1f", o.Price), fmt.Sprintf("%.0f", o.Amount), o.CreatedAt.Format(time.RFC3339))
	}
	table.Render()
	return nil
}

// NotifyFatal alerts the operator before the process deactivates.
func (c *Console) NotifyFatal(_ context.Context, subject string, err error) error {
	fmt.Fprintf(c.out, "\n*** FATAL [%s] %s: %v ***\n", time.Now().Format(time.RFC3339), subject, err)
	return nil
}
