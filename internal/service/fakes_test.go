package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bigkaa/goartstore/ai-gateway/internal/aiclient"
	"github.com/bigkaa/goartstore/ai-gateway/internal/domain/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// memDatasetRepo — DatasetRepository в памяти.
type memDatasetRepo struct {
	mu        sync.Mutex
	nextID    int64
	rows      []*model.Dataset
	listCalls int
	insertErr error
	listErr   error
	// onInsert вызывается перед вставкой (проверка порядка шагов)
	onInsert func(d *model.Dataset)
	// onList вызывается после чтения строк, до возврата результата
	onList func()
}

func (r *memDatasetRepo) Insert(_ context.Context, d *model.Dataset) error {
	if r.onInsert != nil {
		r.onInsert(d)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.nextID++
	d.ID = r.nextID
	d.CreatedAt = time.Now().Add(time.Duration(r.nextID) * time.Millisecond)
	cp := *d
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *memDatasetRepo) ListByOwner(_ context.Context, ownerID string, limit, offset int) ([]*model.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	if r.listErr != nil {
		return nil, r.listErr
	}

	var owned []*model.Dataset
	for _, d := range r.rows {
		if d.OwnerID == ownerID {
			owned = append(owned, d)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].CreatedAt.After(owned[j].CreatedAt) })

	if offset >= len(owned) {
		return nil, nil
	}
	owned = owned[offset:]
	if len(owned) > limit {
		owned = owned[:limit]
	}
	if r.onList != nil {
		r.mu.Unlock()
		r.onList()
		r.mu.Lock()
	}
	return owned, nil
}

func (r *memDatasetRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// fakeForwarder — Forwarder, запоминающий запросы.
type fakeForwarder struct {
	mu       sync.Mutex
	requests []forwardedRequest
	resp     *aiclient.Response
	err      error
}

type forwardedRequest struct {
	Method     string
	Capability string
	RawQuery   string
	JSON       string
	File       string
	Filename   string
}

func (f *fakeForwarder) Forward(_ context.Context, req *aiclient.Request) (*aiclient.Response, error) {
	rec := forwardedRequest{
		Method:     req.Method,
		Capability: req.Capability,
		RawQuery:   req.RawQuery,
		JSON:       string(req.JSON),
		Filename:   req.Filename,
	}
	if req.File != nil {
		data, err := io.ReadAll(req.File)
		if err != nil {
			return nil, err
		}
		rec.File = string(data)
	}

	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if f.resp == nil {
		return nil, errors.New("fakeForwarder: ответ не задан")
	}
	return f.resp, nil
}

func (f *fakeForwarder) calls() []forwardedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]forwardedRequest(nil), f.requests...)
}
