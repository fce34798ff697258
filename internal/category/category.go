package category

import "strings"

// Categories a market can classify into.
const (
	Crypto = "crypto"
	Sports = "sports"
	Other  = "other"
)

// Classifier assigns a topic to a market from its title and slug.
type Classifier interface {
	Classify(title, slug string) string
}

var cryptoKeywords = []string{
	"bitcoin", "btc", "ethereum", "eth", "crypto", "solana", "sol",
	"dogecoin", "doge", "xrp", "ripple", "cardano", "polygon",
	"chainlink", "avalanche", "binance", "bnb", "litecoin", "polkadot",
	"shiba", "pepe", "memecoin", "defi", "nft", "blockchain", "altcoin",
	"stablecoin", "usdt", "usdc", "tether", "coinbase", "kraken",
	"spot etf", "bitcoin etf", "halving", "mining", "satoshi", "vitalik",
}

var sportsKeywords = []string{
	"nfl", "nba", "mlb", "nhl", "fifa", "uefa", "premier league",
	"champions league", "world cup", "super bowl", "playoffs",
	"football", "basketball", "baseball", "hockey", "soccer",
	"tennis", "golf", "boxing", "ufc", "mma", "f1", "formula 1",
	"olympics", "lakers", "celtics", "warriors", "knicks", "chiefs",
	"cowboys", "patriots", "eagles", "manchester", "liverpool",
	"arsenal", "chelsea", "real madrid", "barcelona", "bayern",
	"lebron", "curry", "mahomes", "messi", "ronaldo", "mvp",
	"championship", "finals", "touchdown", " vs ", " win ", " beat ",
}

// Keywords classifies markets by substring match against known keyword
// lists. The slug often carries the category path, so it is searched too.
type Keywords struct{}

// NewKeywords constructs the default keyword classifier.
func NewKeywords() *Keywords {
	return &Keywords{}
}

// Classify returns crypto, sports, or other.
func (k *Keywords) Classify(title, slug string) string {
	text := strings.ToLower(title + " " + slug)

	for _, kw := range cryptoKeywords {
		if strings.Contains(text, kw) {
			return Crypto
		}
	}
	for _, kw := range sportsKeywords {
		if strings.Contains(text, kw) {
			return Sports
		}
	}
	return Other
}

var _ Classifier = (*Keywords)(nil)
