package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/ai-gateway/internal/domain/model"
)

// DatasetRepository — записи о загруженных датасетах (таблица datasets).
type DatasetRepository interface {
	// Insert создаёт запись. ID и CreatedAt заполняются базой.
	Insert(ctx context.Context, d *model.Dataset) error
	// ListByOwner возвращает записи владельца, новые первыми.
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*model.Dataset, error)
}

type datasetRepo struct {
	db DBTX
}

// NewDatasetRepository создаёт репозиторий датасетов.
func NewDatasetRepository(db DBTX) DatasetRepository {
	return &datasetRepo{db: db}
}

// Insert — один INSERT ... RETURNING, без транзакции и блокировок.
func (r *datasetRepo) Insert(ctx context.Context, d *model.Dataset) error {
	query := `
		INSERT INTO datasets (owner_id, file_name, storage_path)
		VALUES ($1, $2, $3)
		RETURNING id, upload_date`

	err := r.db.QueryRow(ctx, query, d.OwnerID, d.OriginalFilename, d.StoragePath).
		Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: storage_path %s", ErrConflict, d.StoragePath)
		}
		return fmt.Errorf("ошибка записи датасета: %w", err)
	}
	return nil
}

func (r *datasetRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*model.Dataset, error) {
	query := `
		SELECT id, owner_id, file_name, storage_path, upload_date
		FROM datasets
		WHERE owner_id = $1
		ORDER BY upload_date DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка датасетов: %w", err)
	}

	datasets, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.Dataset, error) {
		d := &model.Dataset{}
		err := row.Scan(&d.ID, &d.OwnerID, &d.OriginalFilename, &d.StoragePath, &d.CreatedAt)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения списка датасетов: %w", err)
	}
	return datasets, nil
}
