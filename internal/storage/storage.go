// Пакет storage — контракт хранилища загруженных файлов и генерация
// имён хранения (StorageHandle). Реализации: filestore (локальный диск)
// и s3store (S3-совместимое объектное хранилище).
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Ошибки хранилища.
var (
	// ErrNotFound — по указанному handle нет данных.
	ErrNotFound = errors.New("файл не найден в хранилище")
	// ErrInvalidHandle — handle не может принадлежать хранилищу.
	ErrInvalidHandle = errors.New("некорректный handle хранилища")
)

// maxNameLen — максимальная длина очищенного имени в байтах.
const maxNameLen = 100

// SaveResult — результат сохранения файла.
type SaveResult struct {
	// Handle — ключ, по которому файл читается обратно
	Handle string
	// Size — количество записанных байт
	Size int64
	// Checksum — SHA-256 содержимого (hex)
	Checksum string
}

// Store — хранилище загруженных файлов.
//
// Save всегда пишет под новым, ранее не использованным handle и атомарен
// с точки зрения вызывающего: либо весь поток доступен по handle,
// либо возвращается ошибка и handle не выдаётся.
type Store interface {
	Save(ctx context.Context, r io.Reader, originalFilename string) (*SaveResult, error)
	// Open открывает файл по handle. Вызывающий обязан закрыть ReadCloser.
	Open(ctx context.Context, handle string) (io.ReadCloser, error)
}

// GenerateName формирует имя хранения:
// {unix_ms}-{uuid}-{очищенное_имя}. UUID гарантирует уникальность,
// очищенное имя только для удобства чтения.
func GenerateName(originalFilename string) string {
	return fmt.Sprintf("%d-%s-%s", time.Now().UnixMilli(), uuid.New().String(), Sanitize(originalFilename))
}

// Sanitize превращает исходное имя файла в безопасный компонент пути:
// пробельные символы → '_', разделители каталогов, управляющие символы
// и ':' удаляются, последовательности точек схлопываются, ведущие точки
// убираются. Пустой результат заменяется на "file".
func Sanitize(name string) string {
	var b strings.Builder
	prevDot := false
	for _, r := range name {
		switch {
		case r == utf8.RuneError:
			continue
		case unicode.IsSpace(r):
			b.WriteRune('_')
			prevDot = false
		case r == '/' || r == '\\' || r == ':' || unicode.IsControl(r):
			continue
		case r == '.':
			if prevDot {
				continue
			}
			b.WriteRune('.')
			prevDot = true
		default:
			b.WriteRune(r)
			prevDot = false
		}
	}

	result := strings.TrimLeft(b.String(), ".")
	result = truncateUTF8(result, maxNameLen)
	if result == "" {
		return "file"
	}
	return result
}

// truncateUTF8 обрезает строку до n байт, не разрывая руны.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
