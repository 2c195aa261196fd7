// Пакет service — бизнес-логика AI Gateway.
// dispatch.go — классификация тела входящего запроса.
package service

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"

	"github.com/goccy/go-json"

	"github.com/bigkaa/goartstore/ai-gateway/internal/aiclient"
	"github.com/bigkaa/goartstore/ai-gateway/internal/domain/failure"
)

// BodyKind — форма тела запроса после классификации.
type BodyKind int

const (
	// BodyNone — запрос без тела (GET).
	BodyNone BodyKind = iota
	// BodyJSON — JSON, передаётся без изменений.
	BodyJSON
	// BodyFile — файл из multipart/form-data.
	BodyFile
)

// Body — результат классификации тела.
type Body struct {
	Kind BodyKind
	// JSON — исходные байты (BodyJSON)
	JSON []byte
	// File — поток содержимого части file (BodyFile).
	// Действителен, пока не закрыто тело входящего запроса.
	File io.Reader
	// Filename — имя файла, указанное клиентом (BodyFile)
	Filename string
}

// DispatchBody классифицирует тело по Content-Type.
//
// multipart/form-data — ищется часть с именем file и непустым filename;
// остальные части пропускаются. Часть не найдена — MissingFile.
// Любой другой Content-Type — тело читается целиком и проверяется как JSON;
// пустое или невалидное тело — MalformedBody.
//
// Содержимое файла не читается: вызывающий получает поток части.
func DispatchBody(contentType string, body io.Reader) (*Body, error) {
	const op = "service.DispatchBody"

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err == nil && mediaType == "multipart/form-data" {
		return dispatchMultipart(params["boundary"], body)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, failure.New(failure.MalformedBody, op, fmt.Errorf("чтение тела: %w", err))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, failure.New(failure.MalformedBody, op, errors.New("пустое тело"))
	}
	if !json.Valid(data) {
		return nil, failure.New(failure.MalformedBody, op, errors.New("тело не является JSON"))
	}

	return &Body{Kind: BodyJSON, JSON: data}, nil
}

func dispatchMultipart(boundary string, body io.Reader) (*Body, error) {
	const op = "service.DispatchBody"

	if boundary == "" {
		return nil, failure.New(failure.MalformedBody, op, errors.New("multipart без boundary"))
	}

	mr := multipart.NewReader(body, boundary)
	for {
		part, err := mr.NextPart()
		// Голый io.EOF — только после финального boundary.
		// Обрыв тела приходит обёрнутым io.EOF и считается MalformedBody.
		if err == io.EOF { //nolint:errorlint // сравнение без errors.Is намеренно
			return nil, failure.New(failure.MissingFile, op, errors.New("часть file отсутствует"))
		}
		if err != nil {
			return nil, failure.New(failure.MalformedBody, op, fmt.Errorf("разбор multipart: %w", err))
		}

		// Непрочитанные части NextPart пропускает сам
		if part.FormName() == aiclient.FileField && part.FileName() != "" {
			return &Body{Kind: BodyFile, File: part, Filename: part.FileName()}, nil
		}
	}
}
