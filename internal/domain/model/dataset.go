// Пакет model — доменные модели AI Gateway.
package model

import "time"

// Dataset — запись метаданных загруженного файла (таблица datasets).
// Создаётся один раз после того, как байты файла записаны в хранилище,
// и далее не изменяется.
type Dataset struct {
	ID               int64
	OwnerID          string
	OriginalFilename string
	StoragePath      string
	CreatedAt        time.Time
}

// DatasetView — представление записи в ответах API
// (поле newDataset ответа на upload и элементы списка датасетов).
type DatasetView struct {
	ID          int64  `json:"id"`
	FileName    string `json:"file_name"`
	UploadDate  string `json:"upload_date"`
	StoragePath string `json:"storage_path"`
}

// View преобразует запись в API-представление.
func (d *Dataset) View() DatasetView {
	return DatasetView{
		ID:          d.ID,
		FileName:    d.OriginalFilename,
		UploadDate:  d.CreatedAt.UTC().Format(time.RFC3339Nano),
		StoragePath: d.StoragePath,
	}
}
