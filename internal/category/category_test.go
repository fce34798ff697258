package category

import "testing"

func TestClassify(t *testing.T) {
	k := NewKeywords()

	cases := []struct {
		title string
		slug  string
		want  string
	}{
		{"Will Bitcoin reach $100k by March?", "bitcoin-100k", Crypto},
		{"ETH above $5000 this year?", "eth-5000", Crypto},
		{"Will the Chiefs win the Super Bowl?", "super-bowl", Sports},
		{"Lakers vs Celtics game 7", "", Sports},
		{"Will it rain in NYC tomorrow?", "nyc-rain", Other},
		{"Presidential election winner 2028", "election-2028", Other},
	}

	for _, c := range cases {
		if got := k.Classify(c.title, c.slug); got != c.want {
			t.Fatalf("%q 期望分类 %s, 实际 %s", c.title, c.want, got)
		}
	}
}

func TestClassifySlugOnly(t *testing.T) {
	k := NewKeywords()
	// 标题无关键词时应回退到 slug
	if got := k.Classify("Price above target?", "will-dogecoin-hit-1"); got != Crypto {
		t.Fatalf("slug 含 dogecoin 应分类为 crypto, 实际 %s", got)
	}
}

func TestClassifyCaseInsensitive(t *testing.T) {
	k := NewKeywords()
	if got := k.Classify("WILL BITCOIN CRASH?", ""); got != Crypto {
		t.Fatalf("大小写不应影响分类, 实际 %s", got)
	}
}
