package models

// Kline — свеча.
type Kline struct {
	OpenTime  int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime int64
}

// SymbolInfo — метаданные инструмента: точность цены/количества.
// Загружается один раз при старте и при смене торгуемых символов.
type SymbolInfo struct {
	Symbol            string
	PricePrecision    int32
	QuantityPrecision int32
	Status            string
}

// LeverageBracket — ступень плеча с порогами по нотионалу.
type LeverageBracket struct {
	Bracket          int
	InitialLeverage  int
	NotionalCap      float64
	NotionalFloor    float64
	MaintMarginRatio float64
}

// IncomeRecord — запись income history (realized pnl, funding, комиссии).
type IncomeRecord struct {
	Symbol     string
	IncomeType string
	Income     float64
	Time       int64
}

// Signal — вердикт внешнего генератора сигналов.
type Signal string

const (
	SignalLong  Signal = "LONG"
	SignalShort Signal = "SHORT"
	SignalNone  Signal = ""
)
