package models

// PositionSide — сторона позиции на бирже.
type PositionSide string

const (
	SideLong  PositionSide = "LONG"
	SideShort PositionSide = "SHORT"
	// SideBoth приходит в one-way режиме; перед любыми расчётами
	// приводится к LONG/SHORT по знаку количества.
	SideBoth PositionSide = "BOTH"
)

// Opposite возвращает противоположную сторону (для хеджа и закрывающих ордеров).
func (s PositionSide) Opposite() PositionSide {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// Position — снэпшот открытой позиции. Читается только с биржи,
// локально не мутируется.
type Position struct {
	Symbol     string
	Side       PositionSide
	Amount     float64 // со знаком: < 0 значит шорт
	EntryPrice float64
	Leverage   int
	MarginType string // "cross" / "isolated"
}

// ResolvedSide — сторона с учётом one-way режима: BOTH разрешается
// по знаку Amount.
func (p Position) ResolvedSide() PositionSide {
	if p.Side == SideBoth {
		if p.Amount < 0 {
			return SideShort
		}
		return SideLong
	}
	return p.Side
}

// Notional — объём позиции в котируемой валюте по цене входа.
func (p Position) Notional() float64 {
	amt := p.Amount
	if amt < 0 {
		amt = -amt
	}
	return amt * p.EntryPrice
}
