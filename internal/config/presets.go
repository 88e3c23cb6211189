package config

import (
	"sort"
	"time"
)

// Variant reproduces one of the scheduled relay deployments. Values set
// explicitly in the file or environment take precedence over the preset.
type Variant struct {
	ProductIDs []string
	Duration   time.Duration
	Pacing     time.Duration
	Stream     string
}

// DefaultVariant is used when relay.variant is not set
const DefaultVariant = "eur-1m"

const defaultStream = "dev-coinbase-stream"

var variants = map[string]Variant{
	"eur-1m": {
		ProductIDs: []string{"ETH-EUR", "BTC-EUR"},
		Duration:   60 * time.Second,
		Pacing:     500 * time.Millisecond,
		Stream:     defaultStream,
	},
	"usd-5m": {
		ProductIDs: []string{"BTC-USD", "ETH-USD"},
		Duration:   300 * time.Second,
		Pacing:     time.Second,
		Stream:     defaultStream,
	},
	"usd-14m": {
		ProductIDs: []string{"BTC-USD", "ETH-USD", "SOL-USD"},
		Duration:   840 * time.Second,
		Pacing:     2 * time.Second,
		Stream:     defaultStream,
	},
	"eur-14m-unpaced": {
		ProductIDs: []string{"ETH-EUR", "BTC-EUR"},
		Duration:   840 * time.Second,
		Stream:     defaultStream,
	},
}

// LookupVariant returns the named preset
func LookupVariant(name string) (Variant, bool) {
	v, ok := variants[name]
	return v, ok
}

// VariantNames lists the known presets in sorted order
func VariantNames() []string {
	names := make([]string, 0, len(variants))
	for n := range variants {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
