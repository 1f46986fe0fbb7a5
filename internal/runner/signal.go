package runner

import (
	"perp_bot/internal/models"
)

// SignalFunc — внешний генератор сигналов: чистая функция от свежих
// свечей. Для бота это чёрный ящик, индикаторы живут снаружи.
type SignalFunc func(klines []models.Kline) models.Signal

// NoSignal — заглушка: бот работает только по хеджу и ручным позициям.
func NoSignal([]models.Kline) models.Signal { return models.SignalNone }
