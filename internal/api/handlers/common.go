package handlers

import (
	"errors"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"tradebridge/internal/service"
	"tradebridge/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodySize ограничивает тело запроса
const maxBodySize = 1 << 20

// ErrorResponse стандартный формат ответа с ошибкой
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details string                 `json:"details,omitempty"`
	Fields  utils.ValidationErrors `json:"fields,omitempty"`
}

// SuccessResponse стандартный формат успешного ответа
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// respondWithJSON отправляет JSON ответ
func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			utils.L().Error("failed to encode response", utils.Err(err))
		}
	}
}

// respondWithError отправляет JSON ответ с ошибкой
func respondWithError(w http.ResponseWriter, statusCode int, code, message, details string) {
	respondWithJSON(w, statusCode, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// decodeJSON читает тело запроса. Пустое тело - ошибка.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		details := err.Error()
		if errors.Is(err, io.EOF) {
			details = "request body is empty"
		}
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", details)
		return false
	}
	return true
}

// handleServiceError переводит ошибки сервисов в HTTP ответ
func handleServiceError(w http.ResponseWriter, err error) {
	var ve *service.ValidationError
	var fe *service.FetchError

	switch {
	case errors.As(err, &ve):
		respondWithJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Code:    "validation_error",
			Details: ve.Error(),
			Fields:  ve.Fields,
		})

	case errors.Is(err, service.ErrMappingNotFound):
		respondWithError(w, http.StatusNotFound, "mapping_not_found", "Mapping not found", err.Error())

	case errors.Is(err, service.ErrMappingInError):
		respondWithError(w, http.StatusConflict, "mapping_in_error", "Mapping is in error state, wait for its accounts to come back", "")

	case errors.Is(err, service.ErrDeleteNotConfirmed):
		respondWithError(w, http.StatusConflict, "confirmation_required", "Delete must be confirmed with a valid token", "")

	case errors.Is(err, service.ErrPlatformNotSupported):
		respondWithError(w, http.StatusBadRequest, "platform_not_supported", "Account creation is not supported for this platform", "")

	case errors.As(err, &fe):
		respondWithError(w, http.StatusBadGateway, "fetch_failed", "Account provider request failed", fe.Error())

	default:
		utils.L().Error("unhandled service error", utils.Err(err))
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error", "")
	}
}
