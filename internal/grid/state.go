package grid

// State — сеточное состояние одного символа. Мутируется только
// собственным циклом машины, поэтому без синхронизации.
type State struct {
	// средневзвешенная цена покупки; 0 — позиции нет (Idle)
	LastBuyPrice float64

	// минимум цены с момента старта/сброса, монотонно не растёт
	LowestObserved float64

	// индексы ступеней, только вперёд до сброса
	BuyIndex  int
	SellIndex int

	// активные заявки; 0 — заявки нет
	ActiveBuyID  int64
	ActiveBuyQty float64
	ActiveSellID int64

	// цена, по которой размещалась активная заявка (для контроля дрейфа)
	ActiveBuyPrice  float64
	ActiveSellPrice float64
}

// Idle — позиции нет, средняя цена забыта.
func (s *State) Idle() bool { return s.LastBuyPrice == 0 }

// Reset возвращает машину в исходное состояние после полной
// ликвидации или списания пыли.
func (s *State) Reset() {
	s.LastBuyPrice = 0
	s.LowestObserved = 0
	s.BuyIndex = 0
	s.SellIndex = 0
	s.ActiveBuyID = 0
	s.ActiveBuyQty = 0
	s.ActiveSellID = 0
	s.ActiveBuyPrice = 0
	s.ActiveSellPrice = 0
}

// ObservePrice обновляет минимум.
func (s *State) ObservePrice(price float64) {
	if s.LowestObserved == 0 || price < s.LowestObserved {
		s.LowestObserved = price
	}
}

// ApplyBuyFill вливает исполнение в средневзвешенную цену покупки.
// prevQty — сколько монеты было до этого исполнения.
func (s *State) ApplyBuyFill(prevQty, fillQty, fillPrice float64) {
	if s.LastBuyPrice == 0 || prevQty <= 0 {
		s.LastBuyPrice = fillPrice
		return
	}
	total := prevQty + fillQty
	if total <= 0 {
		return
	}
	s.LastBuyPrice = (s.LastBuyPrice*prevQty + fillPrice*fillQty) / total
}

// AdvanceBuy сдвигает индекс покупки, не выходя за последнюю ступень.
func (s *State) AdvanceBuy(levels int) {
	if s.BuyIndex < levels-1 {
		s.BuyIndex++
	}
}

// AdvanceSell сдвигает индекс продажи, не выходя за последнюю ступень.
func (s *State) AdvanceSell(levels int) {
	if s.SellIndex < levels-1 {
		s.SellIndex++
	}
}
