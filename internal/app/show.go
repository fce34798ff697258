package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints recent alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tValue USD\tFills\tSide\tOutcome\tAvg Price\tCategory\tMarket")

	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			alert.OccurredAt.UTC().Format(time.RFC3339),
			alert.ValueUSD.StringFixed(0),
			alert.Fills,
			alert.Side,
			alert.Outcome,
			alert.AvgPrice.StringFixed(3),
			alert.Category,
			sanitizeInline(alert.Title),
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
