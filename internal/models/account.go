package models

// AssetBalance — баланс одного актива на фьючерсном кошельке.
type AssetBalance struct {
	Asset         string
	WalletBalance float64
}

// AccountSnapshot — слепок аккаунта: баланс, активы, позиции.
type AccountSnapshot struct {
	TotalWalletBalance float64
	AvailableBalance   float64
	Assets             []AssetBalance
	Positions          []Position
}

// AssetBalanceOf возвращает баланс конкретного актива (0, если его нет).
func (a AccountSnapshot) AssetBalanceOf(asset string) float64 {
	for _, b := range a.Assets {
		if b.Asset == asset {
			return b.WalletBalance
		}
	}
	return 0
}

// OpenPositions — позиции с ненулевым количеством, опционально по символу.
// Нулевые записи биржа отдаёт для всех торгуемых пар, их всегда отсекаем.
func (a AccountSnapshot) OpenPositions(symbol string) []Position {
	res := make([]Position, 0, len(a.Positions))
	for _, p := range a.Positions {
		if p.Amount == 0 {
			continue
		}
		if symbol != "" && p.Symbol != symbol {
			continue
		}
		res = append(res, p)
	}
	return res
}
