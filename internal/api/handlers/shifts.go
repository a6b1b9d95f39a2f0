package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	apierrors "github.com/bigkaa/erlc-bridge/internal/api/errors"
	"github.com/bigkaa/erlc-bridge/internal/domain/model"
)

type shiftResponse struct {
	ID              string  `json:"id"`
	DiscordUserID   string  `json:"discord_user_id"`
	StartedAt       string  `json:"started_at"`
	EndedAt         *string `json:"ended_at"`
	Active          bool    `json:"active"`
	DurationSeconds int64   `json:"duration_seconds"`
}

type shiftListResponse struct {
	Items  []shiftResponse `json:"items"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

type shiftSummaryResponse struct {
	DiscordUserID        string `json:"discord_user_id"`
	Sessions             int    `json:"sessions"`
	TotalDurationSeconds int64  `json:"total_duration_seconds"`
	OnShift              bool   `json:"on_shift"`
	LastStartedAt        string `json:"last_started_at"`
}

type shiftSummaryListResponse struct {
	Items []shiftSummaryResponse `json:"items"`
	Since *string                `json:"since"`
}

// ListShifts — GET /api/v1/shifts.
// Параметры: discord_id, active (true/false), limit, offset.
func (h *APIHandler) ListShifts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.ShiftFilter{DiscordUserID: q.Get("discord_id")}

	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			apierrors.ValidationError(w, "Параметр active должен быть true или false")
			return
		}
		filter.Active = &active
	}

	limitParam, err := queryInt(r, "limit")
	if err != nil {
		apierrors.ValidationError(w, "Параметр limit должен быть целым числом")
		return
	}
	offsetParam, err := queryInt(r, "offset")
	if err != nil {
		apierrors.ValidationError(w, "Параметр offset должен быть целым числом")
		return
	}
	limit, offset := paginationDefaults(limitParam, offsetParam)

	sessions, total, err := h.shifts.List(r.Context(), filter, limit, offset)
	if err != nil {
		h.logger.Error("Ошибка получения списка смен", slog.String("error", err.Error()))
		apierrors.ServiceUnavailable(w, "Хранилище смен недоступно")
		return
	}

	now := h.now()
	resp := shiftListResponse{
		Items:  make([]shiftResponse, 0, len(sessions)),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for _, s := range sessions {
		resp.Items = append(resp.Items, shiftResponse{
			ID:              s.ID,
			DiscordUserID:   s.DiscordUserID,
			StartedAt:       formatTime(s.StartedAt),
			EndedAt:         formatTimePtr(s.EndedAt),
			Active:          s.Active(),
			DurationSeconds: int64(s.Duration(now).Seconds()),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// ShiftSummary — GET /api/v1/shifts/summary.
// Параметр since (RFC 3339) ограничивает выборку сменами, начатыми не раньше.
func (h *APIHandler) ShiftSummary(w http.ResponseWriter, r *http.Request) {
	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			apierrors.ValidationError(w, "Параметр since должен быть в формате RFC 3339")
			return
		}
		since = &t
	}

	summaries, err := h.shifts.Summary(r.Context(), since)
	if err != nil {
		h.logger.Error("Ошибка получения сводки смен", slog.String("error", err.Error()))
		apierrors.ServiceUnavailable(w, "Хранилище смен недоступно")
		return
	}

	resp := shiftSummaryListResponse{
		Items: make([]shiftSummaryResponse, 0, len(summaries)),
		Since: formatTimePtr(since),
	}
	for _, s := range summaries {
		resp.Items = append(resp.Items, shiftSummaryResponse{
			DiscordUserID:        s.DiscordUserID,
			Sessions:             s.Sessions,
			TotalDurationSeconds: int64(s.TotalDuration.Seconds()),
			OnShift:              s.OnShift,
			LastStartedAt:        formatTime(s.LastStartedAt),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
