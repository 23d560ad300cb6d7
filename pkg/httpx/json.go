package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	apperrors "RetailBackOffice/pkg/errors"
)

// maxBodyBytes предел тела JSON запроса
const maxBodyBytes = 1 << 20

// WriteJSON отправляет JSON ответ с указанным статусом
func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// DecodeJSON разбирает тело запроса в dst. Неизвестные поля и лишние данные после объекта
// считаются ошибкой валидации.
func DecodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return apperrors.New(apperrors.ErrValidation, "empty body").WithDetails("request body is required")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.New(apperrors.ErrValidation, "empty body").WithDetails("request body is required")
		}
		return apperrors.New(apperrors.ErrValidation, "malformed body").WithDetails(fmt.Sprintf("invalid JSON: %v", err))
	}
	if dec.More() {
		return apperrors.New(apperrors.ErrValidation, "malformed body").WithDetails("unexpected data after JSON object")
	}
	return nil
}

// Middleware обертка над http.Handler
type Middleware func(http.Handler) http.Handler

// Chain применяет middleware так, что первый в списке выполняется первым
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// MethodHandler ограничивает обработчик одним HTTP методом
func MethodHandler(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		h(w, r)
	}
}
