package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// Error представляет ошибку из единой таксономии сервиса.
// Code определяет класс ошибки (и HTTP статус), Reason уточняет конкретную причину,
// чтобы клиент мог отличить повторяемые ошибки от окончательных.
type Error struct {
	Code    ErrorCode `json:"code"`
	Reason  string    `json:"reason,omitempty"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// ErrorCode представляет класс ошибки
type ErrorCode string

// Определение кодов ошибок
const (
	ErrUnauthenticated ErrorCode = "UNAUTHENTICATED"
	ErrForbidden       ErrorCode = "FORBIDDEN"
	ErrValidation      ErrorCode = "VALIDATION_ERROR"
	ErrConflict        ErrorCode = "CONFLICT"
	ErrNotFound        ErrorCode = "NOT_FOUND"
	ErrUnavailable     ErrorCode = "UNAVAILABLE"
	ErrTooManyRequests ErrorCode = "TOO_MANY_REQUESTS"
	ErrPoisonEvent     ErrorCode = "POISON_EVENT"
	ErrInternal        ErrorCode = "INTERNAL_ERROR"
)

// statusTable единственная таблица соответствия класса ошибки HTTP статусу
var statusTable = map[ErrorCode]int{
	ErrUnauthenticated: http.StatusUnauthorized,
	ErrForbidden:       http.StatusForbidden,
	ErrValidation:      http.StatusBadRequest,
	ErrConflict:        http.StatusConflict,
	ErrNotFound:        http.StatusNotFound,
	ErrUnavailable:     http.StatusServiceUnavailable,
	ErrTooManyRequests: http.StatusTooManyRequests,
	ErrPoisonEvent:     http.StatusUnprocessableEntity,
	ErrInternal:        http.StatusInternalServerError,
}

// userMessages сообщения для клиента по умолчанию
var userMessages = map[ErrorCode]string{
	ErrUnauthenticated: "Не авторизован",
	ErrForbidden:       "Доступ запрещен",
	ErrValidation:      "Ошибка валидации данных",
	ErrConflict:        "Конфликт данных",
	ErrNotFound:        "Ресурс не найден",
	ErrUnavailable:     "Сервис временно недоступен",
	ErrTooManyRequests: "Слишком много запросов",
	ErrPoisonEvent:     "Некорректное событие",
	ErrInternal:        "Внутренняя ошибка сервера",
}

// Error возвращает сообщение об ошибке
func (e *Error) Error() string {
	msg := e.Message
	if e.Reason != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Reason)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap возвращает причину ошибки
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is сравнивает ошибки по коду и, если у цели задана причина, по причине.
// Это позволяет объявлять ошибки-шаблоны (ErrBadCredentials и т.п.) и проверять их через errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Code != t.Code {
		return false
	}
	return t.Reason == "" || e.Reason == t.Reason
}

// New создает новую ошибку
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap оборачивает существующую ошибку
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WithReason возвращает копию ошибки с конкретной причиной
func (e *Error) WithReason(reason string) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Reason = reason
	return &cp
}

// WithDetails возвращает копию ошибки с деталями
func (e *Error) WithDetails(details string) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Details = details
	return &cp
}

// WithCause возвращает копию ошибки с причиной
func (e *Error) WithCause(cause error) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Cause = cause
	return &cp
}

// HTTPStatus возвращает HTTP статус для ошибки
func (e *Error) HTTPStatus() int {
	if e == nil {
		return http.StatusOK
	}
	if status, ok := statusTable[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// GetUserMessage возвращает сообщение для клиента
func (e *Error) GetUserMessage() string {
	if e == nil {
		return ""
	}
	if msg, ok := userMessages[e.Code]; ok {
		return msg
	}
	return "Произошла ошибка"
}

// As извлекает *Error из цепочки ошибок
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf возвращает класс ошибки; ошибки вне таксономии считаются внутренними
func KindOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Code
	}
	return ErrInternal
}

// ReasonOf возвращает конкретную причину ошибки, если она задана
func ReasonOf(err error) string {
	if e, ok := As(err); ok {
		return e.Reason
	}
	return ""
}

// Is повторяет errors.Is из стандартной библиотеки, чтобы не импортировать оба пакета
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// errorBody формат JSON ответа с ошибкой
type errorBody struct {
	Error struct {
		Code    ErrorCode `json:"code"`
		Reason  string    `json:"reason,omitempty"`
		Message string    `json:"message"`
		Details string    `json:"details,omitempty"`
	} `json:"error"`
	Timestamp string `json:"timestamp"`
}

// WriteError единый диспетчер: преобразует любую ошибку в JSON ответ с нужным статусом.
// Внутренние ошибки не раскрывают причину клиенту.
func WriteError(w http.ResponseWriter, err error) {
	e, ok := As(err)
	if !ok {
		e = New(ErrInternal, "internal error")
	}

	var body errorBody
	body.Error.Code = e.Code
	body.Error.Reason = e.Reason
	body.Error.Message = e.GetUserMessage()
	if e.Code != ErrInternal {
		body.Error.Details = e.Details
	}
	body.Timestamp = time.Now().UTC().Format(time.RFC3339)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus())
	_ = json.NewEncoder(w).Encode(body)
}
