package service

// Сырые структуры ответов API. Числа приходят строками,
// наружу отдаём только типизированные модели из internal/models.

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol            string `json:"symbol"`
		Status            string `json:"status"`
		PricePrecision    int32  `json:"pricePrecision"`
		QuantityPrecision int32  `json:"quantityPrecision"`
	} `json:"symbols"`
}

type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type premiumIndexResponse struct {
	Symbol    string `json:"symbol"`
	MarkPrice string `json:"markPrice"`
}

type ticker24hResponse struct {
	Symbol      string `json:"symbol"`
	QuoteVolume string `json:"quoteVolume"`
}

type accountResponse struct {
	TotalWalletBalance string `json:"totalWalletBalance"`
	AvailableBalance   string `json:"availableBalance"`
	Assets             []struct {
		Asset         string `json:"asset"`
		WalletBalance string `json:"walletBalance"`
	} `json:"assets"`
	Positions []struct {
		Symbol       string `json:"symbol"`
		PositionSide string `json:"positionSide"`
		PositionAmt  string `json:"positionAmt"`
		EntryPrice   string `json:"entryPrice"`
		Leverage     string `json:"leverage"`
		MarginType   string `json:"marginType"`
	} `json:"positions"`
}

type positionModeResponse struct {
	DualSidePosition bool `json:"dualSidePosition"`
}

type leverageResponse struct {
	Symbol   string `json:"symbol"`
	Leverage int    `json:"leverage"`
}

type leverageBracketResponse struct {
	Symbol   string `json:"symbol"`
	Brackets []struct {
		Bracket          int     `json:"bracket"`
		InitialLeverage  int     `json:"initialLeverage"`
		NotionalCap      float64 `json:"notionalCap"`
		NotionalFloor    float64 `json:"notionalFloor"`
		MaintMarginRatio float64 `json:"maintMarginRatio"`
	} `json:"brackets"`
}

type orderResponse struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	PositionSide  string `json:"positionSide"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	OrigQty       string `json:"origQty"`
	Price         string `json:"price"`
	StopPrice     string `json:"stopPrice"`
}

type userTradeResponse struct {
	Symbol  string `json:"symbol"`
	OrderID int64  `json:"orderId"`
	Price   string `json:"price"`
	Qty     string `json:"qty"`
	Side    string `json:"side"`
	Time    int64  `json:"time"`
}

type incomeResponse struct {
	Symbol     string `json:"symbol"`
	IncomeType string `json:"incomeType"`
	Income     string `json:"income"`
	Time       int64  `json:"time"`
}
