package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"polywhales/internal/storage"
)

// Export renders alert history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-72 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	alerts, err := store.ListAlertsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		a.Logger.Info().Msg("no alerts found for export window")
		return nil
	}

	downsampled := downsampleAlerts(alerts, opts.MaxPoints)
	a.Logger.Info().Int("total", len(alerts)).Int("exported", len(downsampled)).Msg("exporting alerts")

	if opts.CSVPath != "" {
		if err := writeAlertsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeAlertsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleAlerts(alerts []storage.AlertRecord, max int) []storage.AlertRecord {
	if max <= 0 || len(alerts) <= max {
		return alerts
	}

	result := make([]storage.AlertRecord, 0, max)
	step := float64(len(alerts)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(alerts) {
			idx = len(alerts) - 1
		}
		result = append(result, alerts[idx])
	}
	return result
}

func writeAlertsCSV(path string, alerts []storage.AlertRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"occurred_at", "value_usd", "avg_price", "size", "fills", "side", "outcome", "category", "trader", "title", "event_slug"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, alert := range alerts {
		record := []string{
			alert.OccurredAt.Format(time.RFC3339),
			alert.ValueUSD.String(),
			alert.AvgPrice.String(),
			alert.Size.String(),
			strconv.Itoa(alert.Fills),
			alert.Side,
			alert.Outcome,
			alert.Category,
			alert.Trader,
			sanitizeInline(alert.Title),
			alert.EventSlug,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeAlertsPNG(path string, alerts []storage.AlertRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(alerts))
	value := make([]float64, len(alerts))
	cumulative := make([]float64, len(alerts))

	sum := 0.0
	for i, alert := range alerts {
		x[i] = alert.OccurredAt
		value[i] = alert.ValueUSD.InexactFloat64()
		sum += value[i]
		cumulative[i] = sum
	}

	usdFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Alert value (USD)",
			ValueFormatter: usdFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Cumulative (USD)",
			ValueFormatter: usdFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Alert USD",
				XValues: x,
				YValues: value,
			},
			chart.TimeSeries{
				Name:    "Cumulative USD",
				XValues: x,
				YValues: cumulative,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
