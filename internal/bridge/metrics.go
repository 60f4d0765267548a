package bridge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики
// ============================================================

// Mappings - количество связок по статусам
var Mappings = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "tradebridge",
		Name:      "mappings",
		Help:      "Number of bridge mappings by status",
	},
	[]string{"status"}, // active, inactive, error
)

// AccountFetchTotal - запросы к источникам счетов
var AccountFetchTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradebridge",
		Name:      "account_fetch_total",
		Help:      "Account source fetches by result",
	},
	[]string{"source", "result"}, // result: success, error
)

// AccountFetchDuration - длительность запроса к источнику
var AccountFetchDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "tradebridge",
		Name:      "account_fetch_duration_ms",
		Help:      "Account source fetch duration in milliseconds",
		Buckets:   []float64{1, 5, 25, 100, 250, 500, 1000, 2500, 5000, 10000},
	},
	[]string{"source"},
)

// MappingOperations - операции над связками
var MappingOperations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradebridge",
		Name:      "mapping_operations_total",
		Help:      "Bridge mapping operations by result",
	},
	[]string{"op", "result"}, // result: success, error, noop
)

// ============ Вспомогательные функции ============

// Результаты операций для меток
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop" // операция не изменила состояние, например удаление отсутствующей связки
)

// RecordAccountFetch записывает результат запроса к источнику
func RecordAccountFetch(source string, err error, elapsed time.Duration) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	AccountFetchTotal.WithLabelValues(source, result).Inc()
	AccountFetchDuration.WithLabelValues(source).Observe(float64(elapsed.Microseconds()) / 1000)
}

// RecordMappingOperation записывает операцию над связкой
func RecordMappingOperation(op string, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	MappingOperations.WithLabelValues(op, result).Inc()
}

// RecordMappingNoop записывает операцию, которой нечего было делать
func RecordMappingNoop(op string) {
	MappingOperations.WithLabelValues(op, ResultNoop).Inc()
}

// UpdateMappingCounts выставляет gauge по всем статусам, отсутствующие = 0
func UpdateMappingCounts(counts map[string]int) {
	for status := range ValidTransitions {
		Mappings.WithLabelValues(status).Set(float64(counts[status]))
	}
}

// RegisterDroppedMessages публикует счетчик отброшенных WebSocket сообщений
func RegisterDroppedMessages(reg prometheus.Registerer, dropped func() int64) error {
	return reg.Register(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: "tradebridge",
			Name:      "ws_dropped_messages_total",
			Help:      "WebSocket messages dropped because a client buffer was full",
		},
		func() float64 { return float64(dropped()) },
	))
}
