// Пакет failure — классификация ошибок обработки запроса шлюзом.
// Каждый компонент конвейера возвращает *Error с видом ошибки;
// преобразование вида в HTTP-ответ выполняется только в api/errors.
package failure

import (
	"errors"
	"fmt"
)

// Kind — вид ошибки, определяющий ответ клиенту.
type Kind string

const (
	Unauthenticated       Kind = "unauthenticated"
	MissingFile           Kind = "missing_file"
	MalformedBody         Kind = "malformed_body"
	StorageFailure        Kind = "storage_failure"
	PersistenceFailure    Kind = "persistence_failure"
	DownstreamError       Kind = "downstream_error"
	DownstreamUnreachable Kind = "downstream_unreachable"
	Unclassified          Kind = "unclassified"
)

// Error — классифицированная ошибка.
// Cause содержит внутренние детали и никогда не уходит клиенту.
type Error struct {
	Kind Kind
	// Op — этап конвейера, на котором произошла ошибка
	Op string
	// Cause — исходная ошибка
	Cause error

	// Поля заполняются только для DownstreamError.
	// StatusCode — HTTP-статус AI-сервиса
	StatusCode int
	// Message — значение поля error из ответа AI-сервиса
	Message string
	// Body — сырое тело ответа AI-сервиса (только для логов)
	Body []byte
}

func (e *Error) Error() string {
	switch {
	case e.Kind == DownstreamError && e.Cause == nil:
		return fmt.Sprintf("%s: %s: статус %d: %s", e.Op, e.Kind, e.StatusCode, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Cause)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New создаёт классифицированную ошибку.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// Downstream создаёт DownstreamError с данными ответа AI-сервиса.
func Downstream(op string, statusCode int, message string, body []byte) *Error {
	return &Error{
		Kind:       DownstreamError,
		Op:         op,
		StatusCode: statusCode,
		Message:    message,
		Body:       body,
	}
}

// KindOf возвращает вид ошибки. Неклассифицированные ошибки — Unclassified.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unclassified
}

// As извлекает *Error из цепочки ошибок.
func As(err error) (*Error, bool) {
	var fe *Error
	ok := errors.As(err, &fe)
	return fe, ok
}
