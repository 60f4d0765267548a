package handlers

import (
	"net/http"
	"time"

	"tradebridge/internal/models"
	"tradebridge/internal/service"
)

// AccountHandler отвечает за список торговых счетов
//
// Endpoints:
// - GET /api/v1/accounts            - текущий снимок счетов
// - POST /api/v1/accounts/refresh   - перечитать счета из всех источников
// - POST /api/v1/accounts           - подключить счет MT4/MT5 у провайдера
// - GET /api/v1/accounts/platforms  - платформы и доступность создания
type AccountHandler struct {
	accountService service.AccountServiceInterface
}

// NewAccountHandler создает новый AccountHandler
func NewAccountHandler(accountService service.AccountServiceInterface) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

// SourceErrorResponse - сбой одного источника
type SourceErrorResponse struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// AccountsResponse - снимок счетов
type AccountsResponse struct {
	Accounts  []*models.Account     `json:"accounts"`
	Errors    []SourceErrorResponse `json:"errors"`
	FetchedAt *time.Time            `json:"fetched_at"`
	Cached    bool                  `json:"cached"`
}

// CreateAccountRequest структура запроса на подключение счета
type CreateAccountRequest struct {
	Name     string `json:"name"`
	Login    string `json:"login"`
	Password string `json:"password"`
	Server   string `json:"server"`
	Platform string `json:"platform"` // mt4, mt5
	Broker   string `json:"broker"`
}

// GetAccounts возвращает текущий снимок
// GET /api/v1/accounts
//
// Response:
// - 200 OK: {accounts, errors, fetched_at, cached}
func (h *AccountHandler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, snapshotToResponse(h.accountService.Snapshot()))
}

// RefreshAccounts перечитывает счета мимо кеша
// POST /api/v1/accounts/refresh
//
// Сбой отдельных источников не делает ответ ошибкой: они перечислены в errors.
func (h *AccountHandler) RefreshAccounts(w http.ResponseWriter, r *http.Request) {
	snap, err := h.accountService.Refresh(r.Context())
	if err != nil {
		respondWithError(w, http.StatusServiceUnavailable, "refresh_cancelled", "Account refresh was cancelled", err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, snapshotToResponse(snap))
}

// CreateAccount подключает счет MetaTrader у провайдера
// POST /api/v1/accounts
//
// Request Body:
//
//	{
//	  "name": "ICMarkets MT5",
//	  "login": "5012345",
//	  "password": "...",
//	  "server": "ICMarketsSC-Demo",
//	  "platform": "mt5",
//	  "broker": "IC Markets"
//	}
//
// Response:
// - 201 Created: счет подключается (connection_status = connecting)
// - 400 Bad Request: невалидные поля или платформа без провайдера
// - 502 Bad Gateway: провайдер отклонил запрос
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acc, err := h.accountService.CreateAccount(r.Context(), &models.NewAccountRequest{
		Name:     req.Name,
		Login:    req.Login,
		Password: req.Password,
		Server:   req.Server,
		Platform: req.Platform,
		Broker:   req.Broker,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, acc)
}

// GetPlatforms возвращает поддерживаемые платформы
// GET /api/v1/accounts/platforms
func (h *AccountHandler) GetPlatforms(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.accountService.Platforms())
}

func snapshotToResponse(snap *service.AccountSnapshot) *AccountsResponse {
	resp := &AccountsResponse{
		Accounts: snap.Accounts,
		Errors:   make([]SourceErrorResponse, 0, len(snap.Errors)),
		Cached:   snap.Cached,
	}
	if resp.Accounts == nil {
		resp.Accounts = []*models.Account{}
	}
	if !snap.FetchedAt.IsZero() {
		t := snap.FetchedAt
		resp.FetchedAt = &t
	}
	for _, fe := range snap.Errors {
		resp.Errors = append(resp.Errors, SourceErrorResponse{Source: fe.Source, Message: fe.Err.Error()})
	}
	return resp
}
