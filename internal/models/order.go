package models

// OrderSide — сторона заявки.
type OrderSide string

const (
	OrderBuy  OrderSide = "BUY"
	OrderSell OrderSide = "SELL"
)

// OrderType — тип заявки фьючерсного API.
type OrderType string

const (
	OrderMarket           OrderType = "MARKET"
	OrderLimit            OrderType = "LIMIT"
	OrderStopLimit        OrderType = "STOP"
	OrderStopMarket       OrderType = "STOP_MARKET"
	OrderTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

// PlacedOrder — принятая биржей заявка. После размещения не меняется,
// возможна только отмена по OrderID.
type PlacedOrder struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	PositionSide  PositionSide
	Type          OrderType
	Status        string
	Quantity      float64
	Price         float64
	StopPrice     float64
}

// IsOpen — заявка ещё не исполнена и не отменена.
func (o PlacedOrder) IsOpen() bool {
	return o.Status == "NEW" || o.Status == "PARTIALLY_FILLED"
}

// Trade — исполнение по нашей заявке из userTrades.
type Trade struct {
	Symbol   string
	OrderID  int64
	Price    float64
	Quantity float64
	Side     OrderSide
	Time     int64 // unix millis
}
