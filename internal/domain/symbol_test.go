package domain

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		symbol string
		want   MarketKind
	}{
		{"KRW-BTC", MarketCrypto},
		{"BTC-ETH", MarketCrypto},
		{"005930", MarketEquity},
		{"000660", MarketEquity},
		{"BTCKRW", MarketUnrecognized},
		{"", MarketUnrecognized},
		{"05930", MarketUnrecognized},  // five digits
		{"0059301", MarketUnrecognized}, // seven digits
		{"00593a", MarketUnrecognized},
	}

	for _, c := range cases {
		if got := Classify(c.symbol); got != c.want {
			t.Errorf("Classify(%q) = %v, want %v", c.symbol, got, c.want)
		}
	}
}

func TestValidPair(t *testing.T) {
	t.Run("Supported Markets", func(t *testing.T) {
		for _, s := range []string{"KRW-BTC", "BTC-ETH", "USDT-XRP"} {
			if !ValidPair(s) {
				t.Errorf("ValidPair(%q) should be true", s)
			}
		}
	})

	t.Run("Rejects Malformed Pairs", func(t *testing.T) {
		for _, s := range []string{"EUR-BTC", "KRW-", "KRW-BTC-ETH", "KRWBTC", ""} {
			if ValidPair(s) {
				t.Errorf("ValidPair(%q) should be false", s)
			}
		}
	})
}

func TestCoin(t *testing.T) {
	if got := Coin("KRW-BTC"); got != "BTC" {
		t.Errorf("Coin(KRW-BTC) = %q, want BTC", got)
	}
	if got := Coin("005930"); got != "" {
		t.Errorf("Coin(005930) = %q, want empty", got)
	}
}
