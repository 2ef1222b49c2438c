package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-refinery/internal/pipeline"
	"github.com/JakeFAU/profile-refinery/internal/progress"
)

// Runner starts and stops pipeline runs.
type Runner interface {
	Run(ctx context.Context, lines []string) (<-chan progress.Event, error)
	Stop()
	Running() bool
}

// RunHandler exposes run control and the progress log of the current run.
type RunHandler struct {
	runner  Runner
	logs    *LogBuffer
	baseCtx context.Context
	logger  *zap.Logger

	mu    sync.Mutex
	state runState
	// gen identifies the run that owns state; a watcher left over from an
	// earlier run compares it before writing.
	gen uint64
}

type runState struct {
	RunID      string     `json:"run_id,omitempty"`
	Running    bool       `json:"running"`
	Phase      int        `json:"phase"`
	PhaseName  string     `json:"phase_name,omitempty"`
	Names      int        `json:"names"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type startRunRequest struct {
	Names []string `json:"names"`
}

// NewRunHandler wires the runner. Runs outlive the request that started them
// and are bound to baseCtx instead.
func NewRunHandler(baseCtx context.Context, runner Runner, logs *LogBuffer, logger *zap.Logger) *RunHandler {
	if logs == nil {
		logs = NewLogBuffer(DefaultLogLines)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunHandler{
		runner:  runner,
		logs:    logs,
		baseCtx: baseCtx,
		logger:  logger,
	}
}

// Start handles POST /v1/run. The body is either {"names": [...]} or a
// text/plain list with one name per line. It returns 202 once the run has
// started and 409 while another run is active.
func (h *RunHandler) Start(w http.ResponseWriter, r *http.Request) {
	names, err := decodeNames(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ch, err := h.runner.Run(h.baseCtx, names)
	if err != nil {
		if errors.Is(err, pipeline.ErrRunInProgress) {
			writeError(w, http.StatusConflict, "a run is already in progress")
			return
		}
		h.logger.Error("start run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}

	now := time.Now().UTC()
	h.mu.Lock()
	h.gen++
	gen := h.gen
	h.logs.Clear()
	h.state = runState{Running: true, Names: len(names), StartedAt: &now}
	h.mu.Unlock()

	go h.watch(gen, ch)
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "started", "names": len(names)})
}

// Stop handles POST /v1/run/stop.
func (h *RunHandler) Stop(w http.ResponseWriter, _ *http.Request) {
	if !h.runner.Running() {
		writeError(w, http.StatusConflict, "no run in progress")
		return
	}
	h.runner.Stop()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

// Status handles GET /v1/run.
func (h *RunHandler) Status(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	state := h.state
	h.mu.Unlock()
	state.Running = state.Running || h.runner.Running()
	writeJSON(w, http.StatusOK, state)
}

// Logs handles GET /v1/run/logs.
func (h *RunHandler) Logs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"lines": h.logs.Lines()})
}

// ClearLogs handles DELETE /v1/run/logs.
func (h *RunHandler) ClearLogs(w http.ResponseWriter, _ *http.Request) {
	h.logs.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// watch drains ch for run gen. Once a newer run has started, remaining
// events are drained without touching state or the log buffer.
func (h *RunHandler) watch(gen uint64, ch <-chan progress.Event) {
	for evt := range ch {
		h.apply(gen, evt)
	}
	now := time.Now().UTC()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gen != gen {
		return
	}
	h.state.Running = false
	h.state.FinishedAt = &now
}

func (h *RunHandler) apply(gen uint64, evt progress.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gen != gen {
		return
	}
	if h.state.RunID == "" {
		h.state.RunID = uuid.UUID(evt.RunID).String()
	}
	switch evt.Kind {
	case progress.KindPhase:
		h.state.Phase = int(evt.Phase)
		h.state.PhaseName = evt.Phase.String()
		h.logs.Append(formatLine(evt.TS, fmt.Sprintf("Phase %d: %s", evt.Phase, evt.Phase)))
	case progress.KindLog:
		h.logs.Append(formatLine(evt.TS, evt.Text))
	}
}

func formatLine(ts time.Time, text string) string {
	return "[" + ts.Format("15:04:05") + "] " + text
}

func decodeNames(r *http.Request) ([]string, error) {
	var names []string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/plain") {
		lines, err := pipeline.ReadNames(r.Body)
		if err != nil {
			return nil, err
		}
		names = lines
	} else {
		var req startRunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, errors.New("invalid JSON")
		}
		for _, n := range req.Names {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}
	if len(names) == 0 {
		return nil, errors.New("at least one name is required")
	}
	return names, nil
}
