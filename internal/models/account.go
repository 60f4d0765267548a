package models

// Account представляет торговый счет из внешнего источника.
// Сервис никогда не изменяет счет, только перечитывает список целиком.
type Account struct {
	ID                string  `json:"id" yaml:"id"`
	Name              string  `json:"name" yaml:"name"`
	Platform          string  `json:"platform" yaml:"platform"`                     // mt4, mt5, hankox, tradelocker, binance
	Broker            string  `json:"broker" yaml:"broker"`
	AccountIdentifier string  `json:"account_identifier" yaml:"account_identifier"` // номер логина у брокера
	Balance           float64 `json:"balance" yaml:"balance"`
	Equity            float64 `json:"equity" yaml:"equity"`
	Currency          string  `json:"currency" yaml:"currency"`
	AccountClass      string  `json:"account_class" yaml:"account_class"`         // demo, live
	ConnectionStatus  string  `json:"connection_status" yaml:"connection_status"` // connected, connecting, disconnected
}

// Платформы
const (
	PlatformMT4         = "mt4"
	PlatformMT5         = "mt5"
	PlatformHankox      = "hankox"
	PlatformTradeLocker = "tradelocker"
	PlatformBinance     = "binance"
)

// Platforms - закрытый список поддерживаемых платформ
var Platforms = []string{
	PlatformMT4,
	PlatformMT5,
	PlatformHankox,
	PlatformTradeLocker,
	PlatformBinance,
}

// Классы счетов
const (
	AccountClassDemo = "demo"
	AccountClassLive = "live"
)

// Статусы подключения
const (
	ConnectionConnected    = "connected"
	ConnectionConnecting   = "connecting"
	ConnectionDisconnected = "disconnected"
)

// IsValidPlatform проверяет, входит ли платформа в закрытый список
func IsValidPlatform(p string) bool {
	for _, known := range Platforms {
		if known == p {
			return true
		}
	}
	return false
}

// IsMetaTrader возвращает true для счетов MT4/MT5
func IsMetaTrader(p string) bool {
	return p == PlatformMT4 || p == PlatformMT5
}

// NewAccountRequest - данные для подключения нового счета у провайдера
type NewAccountRequest struct {
	Name     string `json:"name"`
	Login    string `json:"login"`
	Password string `json:"-"` // не логируется и не возвращается
	Server   string `json:"server"`
	Platform string `json:"platform"`
	Broker   string `json:"broker"`
}
