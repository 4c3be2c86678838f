package domain

import "testing"

func TestCapabilities(t *testing.T) {
	t.Run("Has and Missing", func(t *testing.T) {
		c := CapPublic
		if !c.Has(CapMarketOrders) {
			t.Error("public set should include market orders")
		}
		if c.Has(CapTrading) {
			t.Error("public set should not satisfy trading")
		}
		if got := c.Missing(CapMarketOrders | CapBalance); got != CapBalance {
			t.Errorf("Missing = %s, want balance", got)
		}
	})

	t.Run("String", func(t *testing.T) {
		if got := (CapMarketOrders | CapFees).String(); got != "market-orders,fees" {
			t.Errorf("String = %q", got)
		}
		if got := Capabilities(0).String(); got != "none" {
			t.Errorf("String = %q", got)
		}
	})

	t.Run("Parse", func(t *testing.T) {
		c, ok := ParseCapabilities("public, balance")
		if !ok || c != CapPublic|CapBalance {
			t.Errorf("ParseCapabilities = %s, %v", c, ok)
		}
		if _, ok := ParseCapabilities("teleport"); ok {
			t.Error("unknown capability should fail")
		}
	})
}
