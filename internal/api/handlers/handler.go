// handler.go — обработчики dashboard API (только чтение).
// Данные смен и состояние опроса берутся из сервисного слоя.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/bigkaa/erlc-bridge/internal/domain/model"
	"github.com/bigkaa/erlc-bridge/internal/service"
)

// ShiftReader — чтение смен для dashboard. Реализуется service.ShiftService.
type ShiftReader interface {
	List(ctx context.Context, filter model.ShiftFilter, limit, offset int) ([]*model.ShiftSession, int, error)
	Summary(ctx context.Context, since *time.Time) ([]*model.ShiftSummary, error)
}

// PollerStatusProvider — состояние опроса. Реализуется service.PollerService.
type PollerStatusProvider interface {
	Status() service.PollerStatus
}

// APIHandler — обработчик dashboard API.
type APIHandler struct {
	shifts ShiftReader
	poller PollerStatusProvider
	now    func() time.Time
	logger *slog.Logger
}

// NewAPIHandler создаёт обработчик dashboard API.
func NewAPIHandler(shifts ShiftReader, poller PollerStatusProvider, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		shifts: shifts,
		poller: poller,
		now:    time.Now,
		logger: logger.With(slog.String("component", "api_handler")),
	}
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// queryInt разбирает необязательный целочисленный параметр запроса.
func queryInt(r *http.Request, name string) (*int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// paginationDefaults нормализует параметры пагинации.
// Возвращает корректные limit и offset.
func paginationDefaults(limit *int, offset *int) (int, int) {
	l := 100
	o := 0

	if limit != nil {
		l = min(max(*limit, 1), 1000)
	}
	if offset != nil {
		o = max(*offset, 0)
	}

	return l, o
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
