package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"tradebridge/internal/bridge"
	"tradebridge/internal/models"
	"tradebridge/internal/service"
)

// MappingHandler отвечает за связки счетов
//
// Endpoints:
// - GET /api/v1/mappings                        - список связок (?status=)
// - POST /api/v1/mappings                       - создание связки
// - GET /api/v1/mappings/{id}                   - детали связки
// - POST /api/v1/mappings/{id}/toggle           - active <-> inactive
// - POST /api/v1/mappings/{id}/sync             - отметить синхронизацию
// - POST /api/v1/mappings/{id}/delete-request   - получить токен удаления
// - DELETE /api/v1/mappings/{id}/delete-request - отменить удаление
// - DELETE /api/v1/mappings/{id}?confirm=token  - удалить связку
// - POST /api/v1/mappings/sizing-preview        - расчет объема сделки
type MappingHandler struct {
	mappingService service.MappingServiceInterface
	accounts       service.AccountLookup
	sizing         service.SizingCalculatorInterface
}

// NewMappingHandler создает MappingHandler. accounts и sizing могут быть nil.
func NewMappingHandler(
	mappingService service.MappingServiceInterface,
	accounts service.AccountLookup,
	sizing service.SizingCalculatorInterface,
) *MappingHandler {
	return &MappingHandler{
		mappingService: mappingService,
		accounts:       accounts,
		sizing:         sizing,
	}
}

// CreateMappingRequest структура запроса на создание связки
type CreateMappingRequest struct {
	SourceAccountID string  `json:"source_account_id"`
	TargetAccountID string  `json:"target_account_id"`
	Name            string  `json:"name"`      // опционально, по умолчанию "<source> to <target>"
	SyncMode        string  `json:"sync_mode"` // one-way, two-way
	PositionSizing  string  `json:"position_sizing"`
	PositionValue   float64 `json:"position_value"` // лоты для fixed, проценты иначе
}

// MappingResponse - связка с описанием статуса для UI
type MappingResponse struct {
	*models.BridgeMapping
	StatusInfo string `json:"status_info"`
}

// MappingDetailResponse - связка со счетами и активным запросом удаления
type MappingDetailResponse struct {
	MappingResponse
	SourceAccount *models.Account        `json:"source_account"`
	TargetAccount *models.Account        `json:"target_account"`
	PendingDelete *service.DeleteRequest `json:"pending_delete,omitempty"`
}

// GetMappings возвращает связки в порядке создания
// GET /api/v1/mappings
//
// Query Parameters:
// - status: фильтр по статусу (active, inactive, error)
func (h *MappingHandler) GetMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.mappingService.List(r.URL.Query().Get("status"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	response := make([]MappingResponse, 0, len(mappings))
	for _, m := range mappings {
		response = append(response, toMappingResponse(m))
	}
	respondWithJSON(w, http.StatusOK, response)
}

// CreateMapping создает связку
// POST /api/v1/mappings
//
// Request Body:
//
//	{
//	  "source_account_id": "hankox-1",
//	  "target_account_id": "tradelocker-1",
//	  "sync_mode": "one-way",
//	  "position_sizing": "percentage",
//	  "position_value": 100
//	}
//
// Response:
// - 201 Created: связка создана со статусом active
// - 400 Bad Request: ошибка валидации (fields содержит все поля)
func (h *MappingHandler) CreateMapping(w http.ResponseWriter, r *http.Request) {
	var req CreateMappingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := h.mappingService.Create(&models.MappingInput{
		SourceAccountID: req.SourceAccountID,
		TargetAccountID: req.TargetAccountID,
		Name:            req.Name,
		SyncMode:        req.SyncMode,
		PositionSizing:  req.PositionSizing,
		PositionValue:   req.PositionValue,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, toMappingResponse(m))
}

// GetMapping возвращает связку с данными счетов
// GET /api/v1/mappings/{id}
//
// Счет, пропавший из снимка, отдается как null.
func (h *MappingHandler) GetMapping(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	m, err := h.mappingService.Get(id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := MappingDetailResponse{MappingResponse: toMappingResponse(m)}
	if h.accounts != nil {
		if acc, ok := h.accounts.FindAccount(m.SourceAccountID); ok {
			resp.SourceAccount = acc
		}
		if acc, ok := h.accounts.FindAccount(m.TargetAccountID); ok {
			resp.TargetAccount = acc
		}
	}
	if req, ok := h.mappingService.PendingDelete(id); ok {
		resp.PendingDelete = req
	}

	respondWithJSON(w, http.StatusOK, resp)
}

// ToggleMapping переключает active <-> inactive
// POST /api/v1/mappings/{id}/toggle
//
// Response:
// - 200 OK: обновленная связка
// - 404 Not Found: связки нет
// - 409 Conflict: связка в статусе error
func (h *MappingHandler) ToggleMapping(w http.ResponseWriter, r *http.Request) {
	m, err := h.mappingService.ToggleStatus(mux.Vars(r)["id"])
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toMappingResponse(m))
}

// SyncMapping отмечает синхронизацию
// POST /api/v1/mappings/{id}/sync
func (h *MappingHandler) SyncMapping(w http.ResponseWriter, r *http.Request) {
	m, err := h.mappingService.TouchSync(mux.Vars(r)["id"])
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toMappingResponse(m))
}

// RequestDelete выдает одноразовый токен подтверждения удаления
// POST /api/v1/mappings/{id}/delete-request
//
// Response:
// - 200 OK: {mapping_id, token, expires_at}
// - 404 Not Found: связки нет
func (h *MappingHandler) RequestDelete(w http.ResponseWriter, r *http.Request) {
	req, err := h.mappingService.RequestDelete(mux.Vars(r)["id"])
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, req)
}

// CancelDelete отменяет запрос удаления
// DELETE /api/v1/mappings/{id}/delete-request
func (h *MappingHandler) CancelDelete(w http.ResponseWriter, r *http.Request) {
	h.mappingService.CancelDelete(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

// DeleteMapping удаляет связку по токену подтверждения
// DELETE /api/v1/mappings/{id}?confirm=<token>
//
// Response:
// - 204 No Content: связка удалена (или уже отсутствовала)
// - 409 Conflict: токен отсутствует, неверен или просрочен
func (h *MappingHandler) DeleteMapping(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	token := r.URL.Query().Get("confirm")

	if err := h.mappingService.ConfirmDelete(id, token); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SizingPreview рассчитывает объем сделки на целевом счете
// POST /api/v1/mappings/sizing-preview
//
// Request Body:
//
//	{
//	  "mapping_id": "<uuid>",   // или source/target/position_sizing/position_value
//	  "source_volume": 1.5,
//	  "lot_step": 0.01,         // опционально
//	  "max_lots": 100           // опционально
//	}
func (h *MappingHandler) SizingPreview(w http.ResponseWriter, r *http.Request) {
	if h.sizing == nil {
		respondWithError(w, http.StatusNotImplemented, "not_available", "Sizing preview is not configured", "")
		return
	}

	var req service.SizingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.sizing.Preview(&req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

func toMappingResponse(m *models.BridgeMapping) MappingResponse {
	return MappingResponse{
		BridgeMapping: m,
		StatusInfo:    bridge.StatusInfo(m.Status),
	}
}
