package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertRecord captures an emitted aggregate alert for auditing and export.
type AlertRecord struct {
	ID         int64
	OccurredAt time.Time
	Trader     string
	TraderName string
	Title      string
	EventSlug  string
	Side       string
	Outcome    string
	AvgPrice   decimal.Decimal
	Size       decimal.Decimal
	ValueUSD   decimal.Decimal
	Fills      int
	Category   string
	CreatedAt  time.Time
}
