package alerting

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"polywhales/internal/category"
	"polywhales/internal/model"
)

// Level maps a USD value to a named alert tier.
type Level struct {
	MinUSD int64
	Emoji  string
	NameEN string
	NameRU string
}

// levels ordered largest first.
var levels = []Level{
	{MinUSD: 100_000, Emoji: "🔥", NameEN: "Mega Whale", NameRU: "Мега Кит"},
	{MinUSD: 50_000, Emoji: "⚡", NameEN: "Super Whale", NameRU: "Супер Кит"},
	{MinUSD: 25_000, Emoji: "🐋", NameEN: "Whale", NameRU: "Кит"},
	{MinUSD: 10_000, Emoji: "🦈", NameEN: "Shark", NameRU: "Акула"},
	{MinUSD: 5_000, Emoji: "🐬", NameEN: "Dolphin", NameRU: "Дельфин"},
	{MinUSD: 2_000, Emoji: "🐟", NameEN: "Fish", NameRU: "Рыба"},
	{MinUSD: 500, Emoji: "🦐", NameEN: "Shrimp", NameRU: "Креветка"},
}

// LevelFor returns the matching tier for a USD value, or false when the
// value is below every tier.
func LevelFor(valueUSD decimal.Decimal) (Level, bool) {
	for _, lvl := range levels {
		if valueUSD.GreaterThanOrEqual(decimal.NewFromInt(lvl.MinUSD)) {
			return lvl, true
		}
	}
	return Level{}, false
}

// RenderMessage formats one aggregate alert as Telegram Markdown.
func RenderMessage(agg model.AggregatedTrade, cat, lang string) string {
	catEmoji := map[string]string{
		category.Crypto: "💰",
		category.Sports: "⚽",
		category.Other:  "📌",
	}[cat]

	// 🟢 买入 Yes，🔴 买入 No，🔵 卖出
	sideEmoji := "🔴"
	if agg.Side == model.SideSell {
		sideEmoji = "🔵"
	} else if strings.EqualFold(agg.OutcomeStr, "yes") {
		sideEmoji = "🟢"
	}

	title := agg.Title
	if title == "" {
		title = "Unknown Market"
	}
	if len(title) > 80 {
		title = title[:80]
	}

	trader := agg.TraderName
	if trader == "" {
		trader = "Unknown"
	}

	builder := strings.Builder{}
	if agg.EventSlug != "" {
		builder.WriteString(fmt.Sprintf("%s [%s](https://polymarket.com/event/%s)\n", catEmoji, title, agg.EventSlug))
	} else {
		builder.WriteString(fmt.Sprintf("%s %s\n", catEmoji, title))
	}

	pricePct := agg.AvgPrice.Mul(decimal.NewFromInt(100))
	builder.WriteString(fmt.Sprintf("%s *%s %s* @ %s%%\n", sideEmoji, agg.Side, agg.OutcomeStr, pricePct.StringFixed(1)))
	builder.WriteString(fmt.Sprintf("💵 *$%s*", agg.ValueUSD.StringFixed(0)))
	if agg.IsAggregate && agg.Fills > 1 {
		builder.WriteString(fmt.Sprintf(" (%d fills)", agg.Fills))
	}
	builder.WriteString("\n")

	levelEmoji := ""
	levelName := ""
	if lvl, ok := LevelFor(agg.ValueUSD); ok {
		levelEmoji = lvl.Emoji
		levelName = lvl.NameEN
		if lang == "ru" {
			levelName = lvl.NameRU
		}
	}

	if agg.Trader != "" {
		builder.WriteString(fmt.Sprintf("%s [%s](https://polymarket.com/profile/%s)", levelEmoji, trader, agg.Trader))
	} else {
		builder.WriteString(fmt.Sprintf("%s %s", levelEmoji, trader))
	}
	if levelName != "" {
		builder.WriteString(" · " + levelName)
	}
	return builder.String()
}
