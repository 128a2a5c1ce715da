package domain

import "strings"

// EncodeSymbolID percent-encodes the "/" separator in composite symbol ids
// ("EUR/USD.EXANTE" -> "EUR%2FUSD.EXANTE") so an id is usable both as a cache
// key and as a URL path segment. Encoding an already-encoded id is a no-op.
func EncodeSymbolID(id string) string {
	return strings.ReplaceAll(DecodeSymbolID(id), "/", "%2F")
}

// DecodeSymbolID reverses EncodeSymbolID.
func DecodeSymbolID(id string) string {
	return strings.ReplaceAll(id, "%2F", "/")
}
