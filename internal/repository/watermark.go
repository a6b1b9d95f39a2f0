package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/erlc-bridge/internal/domain/model"
)

// WatermarkRepository — таблица stream_watermarks.
// Реализует watermark.Persister.
type WatermarkRepository struct {
	db DBTX
}

// NewWatermarkRepository создаёт репозиторий watermark.
func NewWatermarkRepository(db DBTX) *WatermarkRepository {
	return &WatermarkRepository{db: db}
}

// LoadAll возвращает сохранённые watermark всех потоков.
func (r *WatermarkRepository) LoadAll(ctx context.Context) (map[model.StreamKind]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT stream, last_key FROM stream_watermarks`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения watermark: %w", err)
	}
	defer rows.Close()

	result := make(map[model.StreamKind]int64)
	for rows.Next() {
		var (
			stream string
			key    int64
		)
		if err := rows.Scan(&stream, &key); err != nil {
			return nil, fmt.Errorf("ошибка сканирования watermark: %w", err)
		}
		result[model.StreamKind(stream)] = key
	}
	return result, rows.Err()
}

// Save сохраняет watermark потока. Значение в базе никогда не уменьшается.
func (r *WatermarkRepository) Save(ctx context.Context, stream model.StreamKind, key int64) error {
	query := `
		INSERT INTO stream_watermarks (stream, last_key)
		VALUES ($1, $2)
		ON CONFLICT (stream) DO UPDATE SET
			last_key = GREATEST(stream_watermarks.last_key, EXCLUDED.last_key),
			updated_at = NOW()`

	if _, err := r.db.Exec(ctx, query, string(stream), key); err != nil {
		return fmt.Errorf("ошибка сохранения watermark %s: %w", stream, err)
	}
	return nil
}
