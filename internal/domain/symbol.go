package domain

import "strings"

// MarketKind classifies where an instrument trades.
type MarketKind int

const (
	MarketUnrecognized MarketKind = iota
	MarketCrypto
	MarketEquity
)

func (k MarketKind) String() string {
	switch k {
	case MarketCrypto:
		return "crypto"
	case MarketEquity:
		return "equity"
	default:
		return "unrecognized"
	}
}

// Classify detects the market kind from the lexical shape of a symbol:
// crypto pairs carry a hyphen (e.g. "KRW-BTC"), Korean equity tickers are
// exactly six digits (e.g. "005930"). Everything else is unrecognized.
func Classify(symbol string) MarketKind {
	if symbol == "" {
		return MarketUnrecognized
	}
	if strings.Contains(symbol, "-") {
		return MarketCrypto
	}
	if len(symbol) == 6 && isAllDigits(symbol) {
		return MarketEquity
	}
	return MarketUnrecognized
}

// ValidPair reports whether a crypto symbol is a well-formed Upbit market
// pair: MARKET-COIN with a supported quote market and a non-empty coin part.
func ValidPair(symbol string) bool {
	parts := strings.Split(symbol, "-")
	if len(parts) != 2 {
		return false
	}
	market, coin := parts[0], parts[1]
	switch market {
	case "KRW", "BTC", "USDT":
		return coin != ""
	}
	return false
}

// Coin extracts the coin currency from a pair symbol ("KRW-BTC" -> "BTC").
// Returns "" when the symbol has no pair shape.
func Coin(symbol string) string {
	_, coin, ok := strings.Cut(symbol, "-")
	if !ok {
		return ""
	}
	return coin
}

func isAllDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
