// Пакет errors — ответы об ошибках HTTP API Moto Admin в формате
// {"error": {"code": "...", "message": "..."}}.
package errors

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок API.
const (
	CodeValidationError      = "VALIDATION_ERROR"
	CodeNotFound             = "NOT_FOUND"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	CodeWorkerUnavailable    = "WORKER_UNAVAILABLE"
	CodeAuthUnavailable      = "AUTH_UNAVAILABLE"
	CodeTooManyRequests      = "TOO_MANY_REQUESTS"
	CodeInternalError        = "INTERNAL_ERROR"
)

// statusByCode — HTTP-статус по умолчанию для каждого кода.
var statusByCode = map[string]int{
	CodeValidationError:      http.StatusBadRequest,
	CodeNotFound:             http.StatusNotFound,
	CodeUnauthorized:         http.StatusUnauthorized,
	CodeConfirmationRequired: http.StatusConflict,
	CodeWorkerUnavailable:    http.StatusBadGateway,
	CodeAuthUnavailable:      http.StatusBadGateway,
	CodeTooManyRequests:      http.StatusTooManyRequests,
	CodeInternalError:        http.StatusInternalServerError,
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// WriteError пишет ошибку с явным статусом (например, 413 с кодом VALIDATION_ERROR).
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// Write пишет ошибку со статусом, соответствующим коду.
func Write(w http.ResponseWriter, code, message string) {
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	WriteError(w, status, code, message)
}

func ValidationError(w http.ResponseWriter, message string) { Write(w, CodeValidationError, message) }

func NotFound(w http.ResponseWriter, message string) { Write(w, CodeNotFound, message) }

func Unauthorized(w http.ResponseWriter, message string) { Write(w, CodeUnauthorized, message) }

// ConfirmationRequired — действие нужно повторить с ?confirm=true.
func ConfirmationRequired(w http.ResponseWriter, message string) {
	Write(w, CodeConfirmationRequired, message)
}

func WorkerUnavailable(w http.ResponseWriter, message string) { Write(w, CodeWorkerUnavailable, message) }

func AuthUnavailable(w http.ResponseWriter, message string) { Write(w, CodeAuthUnavailable, message) }

// TooManyRequests добавляет Retry-After в секундах.
func TooManyRequests(w http.ResponseWriter, message string) {
	w.Header().Set("Retry-After", "60")
	Write(w, CodeTooManyRequests, message)
}

func InternalError(w http.ResponseWriter, message string) { Write(w, CodeInternalError, message) }
