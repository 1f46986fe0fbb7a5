package config

import "testing"

func validGrid() *GridConfig {
	return &GridConfig{
		BuyTriggers:   []float64{1.0, 0.8},
		BuyStops:      []float64{1.05, 1.03},
		BuyLimits:     []float64{1.051, 1.031},
		BuyBudgetUSDT: []float64{50, 100},
		SellTriggers:  []float64{1.05, 1.08},
		SellStops:     []float64{0.97, 0.95},
		SellLimits:    []float64{0.969, 0.949},
		SellFractions: []float64{0.5, 1.0},
	}
}

func TestGridValidateOK(t *testing.T) {
	if err := validGrid().validate(); err != nil {
		t.Fatalf("valid grid rejected: %v", err)
	}
}

func TestGridValidateMisalignedBuyArrays(t *testing.T) {
	g := validGrid()
	g.BuyStops = []float64{1.05}
	if err := g.validate(); err == nil {
		t.Fatal("misaligned buy arrays must be rejected")
	}
}

func TestGridValidateMisalignedSellArrays(t *testing.T) {
	g := validGrid()
	g.SellFractions = []float64{0.5}
	if err := g.validate(); err == nil {
		t.Fatal("misaligned sell arrays must be rejected")
	}
}

func TestGridValidateFractionRange(t *testing.T) {
	g := validGrid()
	g.SellFractions = []float64{0.5, 1.5}
	if err := g.validate(); err == nil {
		t.Fatal("fraction above 1 must be rejected")
	}

	g.SellFractions = []float64{0.5, 0}
	if err := g.validate(); err == nil {
		t.Fatal("zero fraction must be rejected")
	}
}

func TestGridValidateEmpty(t *testing.T) {
	g := &GridConfig{}
	if err := g.validate(); err == nil {
		t.Fatal("empty grid must be rejected")
	}
}
