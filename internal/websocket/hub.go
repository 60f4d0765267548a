package websocket

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"

	"tradebridge/internal/models"
	"tradebridge/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// broadcastBufferSize - очередь сообщений на рассылку
const broadcastBufferSize = 256

var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// Hub управляет всеми активными WebSocket соединениями
//
// Функции:
// - Регистрация и отмена регистрации клиентов
// - Broadcast сообщений всем активным клиентам
// - Отключение клиентов, не успевающих читать
//
// Типы сообщений:
// - mappingUpdate: связка создана или изменена
// - mappingDeleted: связка удалена
// - accountsUpdate: новый снимок счетов
// - accountsError: сбой источника счетов
//
// Использование:
// 1. hub := NewHub(origins)
// 2. go hub.Run()
// 3. router.HandleFunc("/ws/stream", hub.ServeWS)
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	stop     chan struct{}
	stopOnce sync.Once

	origins *OriginChecker
	dropped atomic.Int64
	log     *utils.Logger

	mu sync.RWMutex
}

// NewHub создает Hub. Пустой список origins разрешает любой Origin.
func NewHub(allowedOrigins ...string) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		origins:    NewOriginChecker(allowedOrigins),
		log:        utils.L().WithComponent("ws"),
	}
}

// Run запускает главный цикл Hub до вызова Stop
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client connected", utils.Int("clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client disconnected", utils.Int("clients", total))

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// deliver копирует список клиентов под RLock и отправляет без блокировки.
// Клиенты с полным буфером отключаются.
func (h *Hub) deliver(message []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	var slow []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			slow = append(slow, client)
		}
	}

	if len(slow) == 0 {
		return
	}

	h.mu.Lock()
	for _, client := range slow {
		if _, ok := h.clients[client]; ok {
			delete(h.clients, client)
			close(client.send)
		}
	}
	total := len(h.clients)
	h.mu.Unlock()
	h.dropped.Add(int64(len(slow)))
	h.log.Warn("removed slow clients", utils.Count(len(slow)), utils.Int("clients", total))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

// Stop останавливает Run и закрывает все соединения. Повторный вызов безопасен.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Broadcast сериализует сообщение и ставит его в очередь.
// Не блокирует: при полной очереди сообщение отбрасывается.
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer jsonBufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		h.log.Error("failed to marshal broadcast message", utils.Err(err))
		return
	}

	data := bytes.TrimRight(buf.Bytes(), "\n")
	msg := make([]byte, len(data))
	copy(msg, data)

	h.BroadcastRaw(msg)
}

// BroadcastRaw ставит в очередь уже сериализованное сообщение
func (h *Hub) BroadcastRaw(data []byte) {
	select {
	case h.broadcast <- data:
	case <-h.stop:
	default:
		h.dropped.Add(1)
	}
}

// BroadcastMappingUpdate отправляет актуальное состояние связки
func (h *Hub) BroadcastMappingUpdate(m *models.BridgeMapping) {
	if m == nil {
		return
	}
	h.Broadcast(NewMappingUpdateMessage(m))
}

// BroadcastMappingDeleted сообщает об удалении связки
func (h *Hub) BroadcastMappingDeleted(id string) {
	h.Broadcast(NewMappingDeletedMessage(id))
}

// BroadcastAccountsUpdate отправляет снимок счетов
func (h *Hub) BroadcastAccountsUpdate(accounts []*models.Account, fetchedAt time.Time, cached bool) {
	h.Broadcast(NewAccountsUpdateMessage(accounts, fetchedAt, cached))
}

// BroadcastAccountsError сообщает о сбое источника счетов
func (h *Hub) BroadcastAccountsError(source, message string) {
	h.Broadcast(NewAccountsErrorMessage(source, message))
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages возвращает количество сообщений, не доставленных
// из-за переполнения очереди или медленных клиентов
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}
