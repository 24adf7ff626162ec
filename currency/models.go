package currency

import "time"

// Metadata describes one supported fungible token. Amounts everywhere in the
// engine are unsigned integers scaled by Decimals; there is no floating point
// money anywhere.
type Metadata struct {
	Token     string
	Symbol    string
	Decimals  int
	Supported bool
	CreatedAt time.Time
}
