// Пакет filestore — хранение загруженных файлов на локальном диске.
// Streaming-запись с подсчётом SHA-256 на лету, атомарная публикация
// под новым именем, чтение по handle.
package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bigkaa/goartstore/ai-gateway/internal/storage"
)

// tmpPattern — шаблон временных файлов. Имена хранения начинаются
// с цифр, поэтому временные файлы с ними не пересекаются.
const tmpPattern = ".upload-*.tmp"

// FileStore — управление загруженными файлами на диске.
type FileStore struct {
	// dataDir — корневая директория хранения (GW_UPLOAD_DIR)
	dataDir string
}

// New создаёт FileStore. Создаёт директорию, если она не существует.
func New(dataDir string) (*FileStore, error) {
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("некорректный путь директории данных %s: %w", dataDir, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", abs, err)
	}

	return &FileStore{dataDir: abs}, nil
}

// Save записывает данные из reader на диск с подсчётом SHA-256 на лету.
//
// Паттерн: temp файл → запись + SHA-256 → fsync → link под новым именем →
// удаление temp → fsync директории. link не перезаписывает существующий
// файл, поэтому уже выданный handle никогда не затрагивается.
// При любой ошибке temp файл удаляется и handle не возвращается.
func (s *FileStore) Save(_ context.Context, reader io.Reader, originalFilename string) (*storage.SaveResult, error) {
	name := storage.GenerateName(originalFilename)
	if !filepath.IsLocal(name) || strings.ContainsRune(name, filepath.Separator) {
		return nil, fmt.Errorf("%w: %q", storage.ErrInvalidHandle, name)
	}
	fullPath := filepath.Join(s.dataDir, name)

	f, err := os.CreateTemp(s.dataDir, tmpPattern)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := f.Name()
	// Ссылка под итоговым именем создаётся только после успешной записи
	defer os.Remove(tmpPath)

	hasher := sha256.New()
	size, err := io.Copy(f, io.TeeReader(reader, hasher))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Link(tmpPath, fullPath); err != nil {
		return nil, fmt.Errorf("ошибка публикации файла %s: %w", name, err)
	}

	if err := syncDir(s.dataDir); err != nil {
		os.Remove(fullPath)
		return nil, fmt.Errorf("ошибка fsync директории: %w", err)
	}

	return &storage.SaveResult{
		Handle:   name,
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Open открывает файл по handle для чтения.
// Вызывающий код обязан закрыть ReadCloser.
func (s *FileStore) Open(_ context.Context, handle string) (io.ReadCloser, error) {
	fullPath, err := s.resolve(handle)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, handle)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", handle, err)
	}

	return f, nil
}

// DataDir возвращает абсолютный путь к директории данных.
func (s *FileStore) DataDir() string {
	return s.dataDir
}

// CheckReady проверяет, что директория данных существует и доступна на запись.
// Возвращает статус ("ok", "fail") и сообщение.
func (s *FileStore) CheckReady() (status, message string) {
	f, err := os.CreateTemp(s.dataDir, ".ready-*")
	if err != nil {
		return "fail", fmt.Sprintf("директория %s недоступна на запись", s.dataDir)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return "ok", "директория доступна на запись"
}

// resolve превращает handle в абсолютный путь внутри dataDir.
// Handle — всегда одно имя без разделителей.
func (s *FileStore) resolve(handle string) (string, error) {
	if handle == "" || !filepath.IsLocal(handle) || strings.ContainsAny(handle, `/\`) ||
		strings.HasPrefix(handle, ".") {
		return "", fmt.Errorf("%w: %q", storage.ErrInvalidHandle, handle)
	}
	return filepath.Join(s.dataDir, handle), nil
}

// syncDir выполняет fsync директории, чтобы запись о новом имени
// пережила сбой питания.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// Проверка на этапе компиляции
var _ storage.Store = (*FileStore)(nil)
