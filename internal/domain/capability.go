package domain

import "strings"

// Capabilities is the set of TradingAPI operations an exchange supports.
type Capabilities uint16

const (
	CapMarketOrders Capabilities = 1 << iota
	CapOpenOrders
	CapCreateOrder
	CapCancelOrder
	CapLatestPrice
	CapBalance
	CapFees

	CapPublic  = CapMarketOrders | CapLatestPrice
	CapTrading = CapPublic | CapOpenOrders | CapCreateOrder | CapCancelOrder | CapBalance | CapFees
)

var capabilityNames = []struct {
	cap  Capabilities
	name string
}{
	{CapMarketOrders, "market-orders"},
	{CapOpenOrders, "open-orders"},
	{CapCreateOrder, "create-order"},
	{CapCancelOrder, "cancel-order"},
	{CapLatestPrice, "latest-price"},
	{CapBalance, "balance"},
	{CapFees, "fees"},
}

// Has reports whether every capability in want is present.
func (c Capabilities) Has(want Capabilities) bool {
	return c&want == want
}

// Missing returns the capabilities in want that c lacks.
func (c Capabilities) Missing(want Capabilities) Capabilities {
	return want &^ c
}

func (c Capabilities) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	for _, n := range capabilityNames {
		if c&n.cap != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, ",")
}

// ParseCapabilities parses a comma separated list, also accepting "public" and "trading".
func ParseCapabilities(s string) (Capabilities, bool) {
	var out Capabilities
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		switch part {
		case "":
			continue
		case "public":
			out |= CapPublic
			continue
		case "trading":
			out |= CapTrading
			continue
		}
		found := false
		for _, n := range capabilityNames {
			if n.name == part {
				out |= n.cap
				found = true
				break
			}
		}
		if !found {
			return 0, false
		}
	}
	return out, true
}
