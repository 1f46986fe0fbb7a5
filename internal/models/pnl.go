package models

// PositionPnL — нереализованный результат одной позиции.
type PositionPnL struct {
	Symbol        string
	Side          PositionSide
	EntryPrice    float64
	MarkPrice     float64
	Amount        float64 // со знаком
	Unrealized    float64
	UnrealizedPct float64 // с учётом плеча
	Leverage      int
	MarginType    string
}

// Open — позиция реально открыта.
func (p PositionPnL) Open() bool { return p.Amount != 0 }

// CombinedPnL — суммарный результат по символу для обеих сторон
// (hedge-режим может держать LONG и SHORT одновременно).
type CombinedPnL struct {
	Symbol        string
	Long          *PositionPnL
	Short         *PositionPnL
	Unrealized    float64
	UnrealizedPct float64
	Hedged        bool
}

// PnLSummary — агрегат по income history за сутки.
type PnLSummary struct {
	TotalPnL      float64
	RealizedPnL   float64
	FundingFee    float64
	Commission    float64
	Other         float64
	TradesCount   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64 // проценты
	PnLPercent    float64 // от баланса кошелька
}

// HedgeDecision — решение хедж-контроллера на текущий цикл.
// Не персистится, пересчитывается каждый проход.
type HedgeDecision struct {
	Hedge bool
	Side  PositionSide
	PnL   *CombinedPnL
}
