package domain

import "strings"

// Symbol is a canonical instrument identifier, e.g. "AAPL" or "BINANCE:BTC-USD".
// The part before the first ':' is the venue namespace and is only used for routing.
type Symbol = string

// NormalizeSymbol trims and uppercases a symbol. Empty input stays empty.
func NormalizeSymbol(s string) Symbol {
	return strings.ToUpper(strings.TrimSpace(s))
}

// SplitSymbol returns the namespace prefix and body of a canonical symbol.
// Symbols without a namespace return an empty prefix.
func SplitSymbol(s Symbol) (prefix, body string) {
	i := strings.IndexByte(s, ':')
	if i < 0 {
		return "", s
	}
	return s[:i], s[i+1:]
}

// JoinSymbol builds "<PREFIX>:<BODY>".
func JoinSymbol(prefix, body string) Symbol {
	if prefix == "" {
		return body
	}
	return prefix + ":" + body
}
