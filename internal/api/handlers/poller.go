package handlers

import (
	"net/http"
	"sort"

	"github.com/bigkaa/erlc-bridge/internal/domain/model"
)

type streamResultResponse struct {
	Stream    string `json:"stream"`
	Fetched   int    `json:"fetched"`
	Emitted   int    `json:"emitted"`
	Watermark int64  `json:"watermark"`
	Committed bool   `json:"committed"`
	Error     string `json:"error,omitempty"`
}

type cycleResponse struct {
	CycleID      string                 `json:"cycle_id"`
	StartedAt    string                 `json:"started_at"`
	CompletedAt  string                 `json:"completed_at"`
	Streams      []streamResultResponse `json:"streams"`
	RosterSize   int                    `json:"roster_size"`
	RosterError  string                 `json:"roster_error,omitempty"`
	Joins        int                    `json:"joins"`
	Leaves       int                    `json:"leaves"`
	TeamChanges  int                    `json:"team_changes"`
	Violations   int                    `json:"violations"`
	Unresolved   int                    `json:"unresolved"`
	EvalErrors   int                    `json:"eval_errors"`
	Actions      int                    `json:"actions"`
	ActionErrors int                    `json:"action_errors"`
}

type watermarkResponse struct {
	Stream string `json:"stream"`
	Value  int64  `json:"value"`
}

type pollerStatusResponse struct {
	Running         bool                `json:"running"`
	Halted          bool                `json:"halted"`
	HaltReason      string              `json:"halt_reason,omitempty"`
	IntervalSeconds float64             `json:"interval_seconds"`
	Cycles          int64               `json:"cycles"`
	LastCycle       *cycleResponse      `json:"last_cycle"`
	Watermarks      []watermarkResponse `json:"watermarks"`
}

// PollerStatus — GET /api/v1/poller/status.
func (h *APIHandler) PollerStatus(w http.ResponseWriter, _ *http.Request) {
	st := h.poller.Status()

	resp := pollerStatusResponse{
		Running:         st.Running,
		Halted:          st.Halted,
		HaltReason:      st.HaltReason,
		IntervalSeconds: st.Interval.Seconds(),
		Cycles:          st.Cycles,
		Watermarks:      make([]watermarkResponse, 0, len(st.Watermarks)),
	}
	if st.LastCycle != nil {
		resp.LastCycle = toCycleResponse(st.LastCycle)
	}
	for stream, v := range st.Watermarks {
		resp.Watermarks = append(resp.Watermarks, watermarkResponse{Stream: string(stream), Value: v})
	}
	sort.Slice(resp.Watermarks, func(i, j int) bool {
		return resp.Watermarks[i].Stream < resp.Watermarks[j].Stream
	})

	writeJSON(w, http.StatusOK, resp)
}

func toCycleResponse(c *model.CycleResult) *cycleResponse {
	resp := &cycleResponse{
		CycleID:      c.CycleID,
		StartedAt:    formatTime(c.StartedAt),
		CompletedAt:  formatTime(c.CompletedAt),
		Streams:      make([]streamResultResponse, 0, len(c.Streams)),
		RosterSize:   c.RosterSize,
		RosterError:  c.RosterError,
		Joins:        c.Joins,
		Leaves:       c.Leaves,
		TeamChanges:  c.TeamChanges,
		Violations:   c.Violations,
		Unresolved:   c.Unresolved,
		EvalErrors:   c.EvalErrors,
		Actions:      c.Actions,
		ActionErrors: c.ActionErrors,
	}
	for _, s := range c.Streams {
		resp.Streams = append(resp.Streams, streamResultResponse{
			Stream:    string(s.Stream),
			Fetched:   s.Fetched,
			Emitted:   s.Emitted,
			Watermark: s.Watermark,
			Committed: s.Committed,
			Error:     s.Error,
		})
	}
	return resp
}

// PollerReadinessChecker — готовность опроса для /health/ready.
type PollerReadinessChecker struct {
	poller PollerStatusProvider
}

// NewPollerReadinessChecker создаёт checker состояния опроса.
func NewPollerReadinessChecker(poller PollerStatusProvider) *PollerReadinessChecker {
	return &PollerReadinessChecker{poller: poller}
}

// CheckReady: остановка из-за ошибки авторизации — fail,
// опрос ещё не завершил ни одного цикла — degraded.
func (c *PollerReadinessChecker) CheckReady() (status, message string) {
	st := c.poller.Status()
	switch {
	case st.Halted:
		return "fail", "опрос остановлен: " + st.HaltReason
	case !st.Running:
		return "fail", "опрос не запущен"
	case st.LastCycle == nil:
		return "degraded", "первый цикл опроса ещё не завершён"
	case st.LastCycle.RosterError != "":
		return "degraded", "последний цикл: " + st.LastCycle.RosterError
	}
	return "ok", ""
}
