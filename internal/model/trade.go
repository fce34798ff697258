package model

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Trade sides as reported by the Data API.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// RawTrade is a single fill normalized from the upstream Data API.
// Timestamp is always unix seconds; millisecond inputs are converted
// at the fetch boundary.
type RawTrade struct {
	Trader     string
	TraderName string
	Market     string
	Side       string
	Outcome    int
	OutcomeStr string
	Price      decimal.Decimal
	Size       decimal.Decimal
	Timestamp  int64
	TxHash     string
	Title      string
	EventSlug  string
}

// ValueUSD returns price*size.
func (t RawTrade) ValueUSD() decimal.Decimal {
	return t.Price.Mul(t.Size)
}

// Key derives the dedup identity of a fill. Price and size are quantized
// to six decimal places so that string/number formatting differences from
// the source never split one fill into two identities. The key is wider
// than the transaction hash alone because the source occasionally omits
// or reuses hashes.
func (t RawTrade) Key() string {
	var b strings.Builder
	b.WriteString(t.Trader)
	b.WriteByte('|')
	b.WriteString(t.Market)
	b.WriteByte('|')
	b.WriteString(t.Side)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(t.Outcome))
	b.WriteByte('|')
	b.WriteString(t.Price.StringFixed(6))
	b.WriteByte('|')
	b.WriteString(t.Size.StringFixed(6))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(t.Timestamp, 10))
	b.WriteByte('|')
	b.WriteString(t.TxHash)
	return b.String()
}

// SeriesKey groups fills that belong to the same logical burst.
func (t RawTrade) SeriesKey() SeriesKey {
	return SeriesKey{Trader: t.Trader, Market: t.Market, Side: t.Side, Outcome: t.Outcome}
}

// SeriesKey identifies a series accumulator.
type SeriesKey struct {
	Trader  string
	Market  string
	Side    string
	Outcome int
}

// AggregatedTrade is emitted once per series that crosses the alert
// threshold. It carries the series totals, not the triggering fill, plus
// the first fill's descriptive metadata for message rendering.
type AggregatedTrade struct {
	Trader     string
	TraderName string
	Market     string
	Side       string
	Outcome    int
	OutcomeStr string
	Title      string
	EventSlug  string

	ValueUSD    decimal.Decimal
	AvgPrice    decimal.Decimal
	Size        decimal.Decimal
	Fills       int
	IsAggregate bool
	FirstSeen   int64
}
