// Пакет s3store — хранение загруженных файлов в S3-совместимом хранилище.
// Поток сначала буферизуется во временный файл (PutObject требует
// известной длины и перематываемого тела), затем публикуется одним
// PutObject с условием If-None-Match: * — существующий ключ не перезаписывается.
package s3store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/bigkaa/goartstore/ai-gateway/internal/storage"
)

// readyTimeout — таймаут проверки доступности бакета.
const readyTimeout = 5 * time.Second

// API — подмножество методов *s3.Client, используемое хранилищем.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Store — хранилище файлов в бакете S3.
type Store struct {
	client   API
	bucket   string
	prefix   string
	spoolDir string
	logger   *slog.Logger
}

// New создаёт хранилище с клиентом из стандартной цепочки AWS-конфигурации
// (переменные окружения, shared config, IAM role).
func New(ctx context.Context, bucket, prefix, spoolDir string, logger *slog.Logger) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("не задан бакет S3")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("загрузка AWS-конфигурации: %w", err)
	}
	return NewWithClient(s3.NewFromConfig(cfg), bucket, prefix, spoolDir, logger), nil
}

// NewWithClient создаёт хранилище с переданным клиентом.
func NewWithClient(client API, bucket, prefix, spoolDir string, logger *slog.Logger) *Store {
	return &Store{
		client:   client,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		spoolDir: spoolDir,
		logger:   logger.With(slog.String("component", "s3store")),
	}
}

// Save буферизует поток во временный файл с подсчётом SHA-256
// и загружает его в бакет под новым ключом.
func (s *Store) Save(ctx context.Context, reader io.Reader, originalFilename string) (*storage.SaveResult, error) {
	name := storage.GenerateName(originalFilename)

	spool, err := os.CreateTemp(s.spoolDir, "s3-spool-*")
	if err != nil {
		return nil, fmt.Errorf("ошибка создания буферного файла: %w", err)
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	hasher := sha256.New()
	size, err := io.Copy(spool, io.TeeReader(reader, hasher))
	if err != nil {
		return nil, fmt.Errorf("ошибка буферизации данных: %w", err)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("ошибка перемотки буферного файла: %w", err)
	}

	checksum := hex.EncodeToString(hasher.Sum(nil))
	key := s.keyFor(name)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          spool,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/octet-stream"),
		IfNoneMatch:   aws.String("*"),
		ACL:           types.ObjectCannedACLPrivate,
		Metadata: map[string]string{
			// Заголовки метаданных S3 допускают только ASCII
			"original-filename": url.QueryEscape(originalFilename),
			"sha256":            checksum,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка PutObject %s: %w", key, err)
	}

	s.logger.Debug("Объект загружен в S3",
		slog.String("bucket", s.bucket),
		slog.String("key", key),
		slog.Int64("size", size),
	)

	return &storage.SaveResult{
		Handle:   key,
		Size:     size,
		Checksum: checksum,
	}, nil
}

// Open возвращает тело объекта по ключу. Вызывающий обязан закрыть его.
func (s *Store) Open(ctx context.Context, handle string) (io.ReadCloser, error) {
	if handle == "" || (s.prefix != "" && !strings.HasPrefix(handle, s.prefix+"/")) {
		return nil, fmt.Errorf("%w: %q", storage.ErrInvalidHandle, handle)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(handle),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, handle)
		}
		return nil, fmt.Errorf("ошибка GetObject %s: %w", handle, err)
	}
	return out.Body, nil
}

// CheckReady проверяет доступность бакета.
func (s *Store) CheckReady() (status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()

	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return "fail", fmt.Sprintf("бакет %s недоступен", s.bucket)
	}
	return "ok", "бакет доступен"
}

// keyFor возвращает ключ объекта с учётом префикса.
func (s *Store) keyFor(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Проверка на этапе компиляции
var _ storage.Store = (*Store)(nil)
