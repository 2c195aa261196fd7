// Пакет errors — единая точка преобразования ошибок конвейера в HTTP-ответ.
// Формат: {"error": "<сообщение>", "code": "<КОД>"}; поле error — строка,
// её читает фронтенд. Внутренние детали уходят только в лог.
package errors //nolint:revive // конфликт имени со stdlib, импортируется как apierrors

import (
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/bigkaa/goartstore/ai-gateway/internal/domain/failure"
)

// Коды ошибок.
const (
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeMissingFile           = "MISSING_FILE"
	CodeMalformedBody         = "MALFORMED_BODY"
	CodeStorageFailure        = "STORAGE_FAILURE"
	CodePersistenceFailure    = "PERSISTENCE_FAILURE"
	CodeDownstreamError       = "DOWNSTREAM_ERROR"
	CodeDownstreamUnreachable = "DOWNSTREAM_UNREACHABLE"
	CodeInternalError         = "INTERNAL_ERROR"
	CodeValidationError       = "VALIDATION_ERROR"
	CodeNotFound              = "NOT_FOUND"
	CodeMethodNotAllowed      = "METHOD_NOT_ALLOWED"
)

// Фиксированные сообщения для клиента.
const (
	MsgUnauthorized       = "Требуется авторизация"
	MsgMissingFile        = "В форме нет файла (поле file)"
	MsgMalformedBody      = "Некорректное тело запроса"
	MsgStorageFailure     = "Не удалось сохранить файл"
	MsgPersistenceFailure = "Не удалось сохранить сведения о датасете"
	MsgDownstream         = "Ошибка взаимодействия с AI-сервисом"
	MsgInternal           = "Внутренняя ошибка сервера"
	MsgNotFound           = "Маршрут не найден"
	MsgMethodNotAllowed   = "Метод не поддерживается"
)

// maxLoggedBody — предел тела ответа AI-сервиса в логе.
const maxLoggedBody = 2048

// errorBody — тело ответа с ошибкой.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Normalize возвращает HTTP-статус, код и сообщение для клиента.
func Normalize(err error) (status int, code, message string) {
	fe, ok := failure.As(err)
	if !ok {
		return http.StatusInternalServerError, CodeInternalError, MsgInternal
	}

	switch fe.Kind {
	case failure.Unauthenticated:
		return http.StatusUnauthorized, CodeUnauthorized, MsgUnauthorized
	case failure.MissingFile:
		return http.StatusBadRequest, CodeMissingFile, MsgMissingFile
	case failure.MalformedBody:
		return http.StatusBadRequest, CodeMalformedBody, MsgMalformedBody
	case failure.StorageFailure:
		return http.StatusInternalServerError, CodeStorageFailure, MsgStorageFailure
	case failure.PersistenceFailure:
		return http.StatusInternalServerError, CodePersistenceFailure, MsgPersistenceFailure
	case failure.DownstreamError:
		status = fe.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusInternalServerError
		}
		message = fe.Message
		if message == "" {
			message = MsgDownstream
		}
		return status, CodeDownstreamError, message
	case failure.DownstreamUnreachable:
		return http.StatusInternalServerError, CodeDownstreamUnreachable, MsgDownstream
	default:
		return http.StatusInternalServerError, CodeInternalError, MsgInternal
	}
}

// WriteFailure логирует ошибку с полными деталями и пишет клиенту
// нормализованный ответ.
func WriteFailure(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, code, message := Normalize(err)

	attrs := []any{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("code", code),
		slog.String("kind", string(failure.KindOf(err))),
		slog.String("error", err.Error()),
	}
	if fe, ok := failure.As(err); ok && fe.Kind == failure.DownstreamError {
		body := fe.Body
		if len(body) > maxLoggedBody {
			body = body[:maxLoggedBody]
		}
		attrs = append(attrs,
			slog.Int("downstream_status", fe.StatusCode),
			slog.String("downstream_body", string(body)),
		)
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Ошибка обработки запроса", attrs...)
	} else {
		logger.Warn("Запрос отклонён", attrs...)
	}

	WriteError(w, status, code, message)
}

// WriteError записывает ответ ошибки.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	WriteJSON(w, statusCode, errorBody{Error: message, Code: code})
}

// ValidationError — 400 некорректные параметры запроса.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// WriteJSON записывает v как JSON с указанным статусом.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// NotFound — ответ 404 для неизвестного маршрута.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotFound, CodeNotFound, MsgNotFound)
}

// MethodNotAllowed — ответ 405 для известного маршрута с другим методом.
func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, MsgMethodNotAllowed)
}
