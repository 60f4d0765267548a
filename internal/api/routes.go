package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradebridge/internal/api/handlers"
	"tradebridge/internal/api/middleware"
	"tradebridge/internal/service"
	"tradebridge/internal/websocket"
	"tradebridge/pkg/utils"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	AccountService service.AccountServiceInterface
	MappingService service.MappingServiceInterface
	Sizing         service.SizingCalculatorInterface
	Accounts       service.AccountLookup
	Hub            *websocket.Hub
	Logger         *utils.Logger

	// MetricsHandler по умолчанию promhttp.Handler()
	MetricsHandler http.Handler

	AllowedOrigins    []string
	DebugUsername     string
	DebugPasswordHash string
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /accounts/
//	│   ├── GET / - снимок счетов
//	│   ├── POST / - подключить счет MT4/MT5
//	│   ├── POST /refresh - перечитать счета
//	│   └── GET /platforms - поддерживаемые платформы
//	└── /mappings/
//	    ├── GET / - список связок
//	    ├── POST / - создать связку
//	    ├── POST /sizing-preview - расчет объема
//	    ├── GET /{id} - детали связки
//	    ├── DELETE /{id}?confirm= - удалить связку
//	    ├── POST /{id}/toggle - active <-> inactive
//	    ├── POST /{id}/sync - отметить синхронизацию
//	    ├── POST /{id}/delete-request - токен удаления
//	    └── DELETE /{id}/delete-request - отменить удаление
//
// /ws/stream - WebSocket для real-time обновлений
// /metrics   - Prometheus (DebugAuth)
// /health    - проверка живости
//
// Middleware: Recovery, Logging, CORS для всех маршрутов.
func SetupRoutes(deps *Dependencies) *mux.Router {
	if deps == nil {
		deps = &Dependencies{}
	}
	log := deps.Logger
	if log == nil {
		log = utils.L()
	}

	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logging(log))
	router.Use(middleware.CORS(deps.AllowedOrigins))

	var accountHandler *handlers.AccountHandler
	if deps.AccountService != nil {
		accountHandler = handlers.NewAccountHandler(deps.AccountService)
	}

	var mappingHandler *handlers.MappingHandler
	if deps.MappingService != nil {
		mappingHandler = handlers.NewMappingHandler(deps.MappingService, deps.Accounts, deps.Sizing)
	}

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	if accountHandler != nil {
		api.HandleFunc("/accounts", accountHandler.GetAccounts).Methods("GET")
		api.HandleFunc("/accounts", accountHandler.CreateAccount).Methods("POST")
		api.HandleFunc("/accounts/refresh", accountHandler.RefreshAccounts).Methods("POST")
		api.HandleFunc("/accounts/platforms", accountHandler.GetPlatforms).Methods("GET")
	}

	if mappingHandler != nil {
		api.HandleFunc("/mappings", mappingHandler.GetMappings).Methods("GET")
		api.HandleFunc("/mappings", mappingHandler.CreateMapping).Methods("POST")
		// до /mappings/{id}, иначе "sizing-preview" станет id
		api.HandleFunc("/mappings/sizing-preview", mappingHandler.SizingPreview).Methods("POST")
		api.HandleFunc("/mappings/{id}", mappingHandler.GetMapping).Methods("GET")
		api.HandleFunc("/mappings/{id}", mappingHandler.DeleteMapping).Methods("DELETE")
		api.HandleFunc("/mappings/{id}/toggle", mappingHandler.ToggleMapping).Methods("POST")
		api.HandleFunc("/mappings/{id}/sync", mappingHandler.SyncMapping).Methods("POST")
		api.HandleFunc("/mappings/{id}/delete-request", mappingHandler.RequestDelete).Methods("POST")
		api.HandleFunc("/mappings/{id}/delete-request", mappingHandler.CancelDelete).Methods("DELETE")
	}

	// WebSocket route
	if deps.Hub != nil {
		router.HandleFunc("/ws/stream", deps.Hub.ServeWS)
	}

	metrics := deps.MetricsHandler
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	router.Handle("/metrics", middleware.DebugAuth(deps.DebugUsername, deps.DebugPasswordHash)(metrics)).Methods("GET")

	// Preflight для любых путей: CORS middleware отвечает сам
	router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
