package grid

import (
	"math"
	"testing"
)

func TestObservePriceMonotonic(t *testing.T) {
	var s State
	for _, p := range []float64{100, 105, 98, 120, 97, 99} {
		s.ObservePrice(p)
	}
	if s.LowestObserved != 97 {
		t.Fatalf("lowest: got %f want 97", s.LowestObserved)
	}
}

func TestApplyBuyFillWeightedAverage(t *testing.T) {
	var s State

	// первая покупка задаёт среднюю
	s.ApplyBuyFill(0, 1.0, 100)
	if s.LastBuyPrice != 100 {
		t.Fatalf("first fill: got %f want 100", s.LastBuyPrice)
	}

	// вторая взвешивается по количеству: (100*1 + 80*1) / 2 = 90
	s.ApplyBuyFill(1.0, 1.0, 80)
	if math.Abs(s.LastBuyPrice-90) > 1e-9 {
		t.Fatalf("weighted average: got %f want 90", s.LastBuyPrice)
	}

	// неравные объёмы: (90*2 + 60*1) / 3 = 80
	s.ApplyBuyFill(2.0, 1.0, 60)
	if math.Abs(s.LastBuyPrice-80) > 1e-9 {
		t.Fatalf("weighted average: got %f want 80", s.LastBuyPrice)
	}
}

func TestAdvanceClamped(t *testing.T) {
	var s State
	for i := 0; i < 10; i++ {
		s.AdvanceBuy(3)
		s.AdvanceSell(2)
	}
	if s.BuyIndex != 2 {
		t.Fatalf("buy index: got %d want 2", s.BuyIndex)
	}
	if s.SellIndex != 1 {
		t.Fatalf("sell index: got %d want 1", s.SellIndex)
	}
}

func TestIndexMonotonicUntilReset(t *testing.T) {
	var s State
	prev := 0
	for i := 0; i < 5; i++ {
		s.AdvanceBuy(10)
		if s.BuyIndex < prev {
			t.Fatalf("buy index decreased: %d -> %d", prev, s.BuyIndex)
		}
		prev = s.BuyIndex
	}

	s.Reset()
	if s.BuyIndex != 0 || s.SellIndex != 0 || s.LastBuyPrice != 0 || s.LowestObserved != 0 {
		t.Fatalf("reset incomplete: %+v", s)
	}
	if !s.Idle() {
		t.Fatal("reset state must be idle")
	}
}
