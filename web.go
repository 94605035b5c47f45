package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/metroinfo/metrobot/reconciler"
	"github.com/metroinfo/metrobot/types"
	"github.com/metroinfo/metrobot/utils"
	"go.uber.org/zap"
)

type statusReader interface {
	Latest(ctx context.Context) (types.Network, error)
}

// webHandler serves the read-only status endpoints
type webHandler struct {
	statuses   statusReader
	lastReport func() *reconciler.Report
	ping       func() error
	log        *zap.Logger
}

type stationJSON struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Transfer string `json:"transfer,omitempty"`
}

type lineJSON struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Message  string        `json:"message"`
	Details  string        `json:"details,omitempty"`
	Stations []stationJSON `json:"stations"`
}

type resultJSON struct {
	GuildID   string `json:"guild_id"`
	LineID    string `json:"line_id"`
	MessageID string `json:"message_id"`
	Outcome   string `json:"outcome"`
	Error     string `json:"error,omitempty"`
}

type reportJSON struct {
	Start      time.Time      `json:"start"`
	DurationMS int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
	Counts     map[string]int `json:"counts"`
	Results    []resultJSON   `json:"results"`
}

// WebServer starts the web server
func WebServer() {
	if cfg.Web.Addr == "" {
		webLog.Info("web server disabled")
		return
	}
	h := &webHandler{
		statuses:   statusSource,
		lastReport: runner.LastReport,
		ping:       rdb.Ping,
		log:        webLog,
	}

	webLog.Info("starting web server...", zap.String("addr", cfg.Web.Addr))
	server := http.Server{
		Addr:              cfg.Web.Addr,
		Handler:           h.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	err := server.ListenAndServe()
	if err != nil {
		webLog.Error("web server failed", zap.Error(err))
	}
	webLog.Info("web server terminated")
}

func (h *webHandler) router() *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	router.Use(h.countRequests)

	router.HandleFunc("/status", h.networkStatus).Methods(http.MethodGet)
	router.HandleFunc("/status/{line:[0-9A-Za-z]{1,4}}", h.lineStatus).Methods(http.MethodGet)
	router.HandleFunc("/reconcile", h.reconcileReport).Methods(http.MethodGet)
	router.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	return router
}

func (h *webHandler) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		webRequestCount.Add(1)
		select {
		case webRequestTelemetry <- struct{}{}:
		default:
		}
		h.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("ip", utils.GetClientIP(r)))
		next.ServeHTTP(w, r)
	})
}

func (h *webHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("failed to write response", zap.Error(err))
	}
}

func (h *webHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *webHandler) networkStatus(w http.ResponseWriter, r *http.Request) {
	network, err := h.statuses.Latest(r.Context())
	if err != nil {
		h.log.Warn("network status unavailable", zap.Error(err))
		h.writeError(w, http.StatusServiceUnavailable, "network status unavailable")
		return
	}
	lines := []lineJSON{}
	for _, line := range network {
		lines = append(lines, newLineJSON(line))
	}
	h.writeJSON(w, http.StatusOK, lines)
}

func (h *webHandler) lineStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := types.ParseLineID(mux.Vars(r)["line"])
	if !ok {
		h.writeError(w, http.StatusNotFound, "unknown line")
		return
	}
	network, err := h.statuses.Latest(r.Context())
	if err != nil {
		h.log.Warn("network status unavailable", zap.Error(err))
		h.writeError(w, http.StatusServiceUnavailable, "network status unavailable")
		return
	}
	line := network.Line(id)
	if line == nil {
		h.writeError(w, http.StatusNotFound, "line not reported by the network")
		return
	}
	h.writeJSON(w, http.StatusOK, newLineJSON(line))
}

func (h *webHandler) reconcileReport(w http.ResponseWriter, r *http.Request) {
	report := h.lastReport()
	if report == nil {
		h.writeError(w, http.StatusServiceUnavailable, "no sweep finished yet")
		return
	}
	h.writeJSON(w, http.StatusOK, newReportJSON(report))
}

func (h *webHandler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.ping(); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		h.writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func newLineJSON(line *types.LineStatus) lineJSON {
	l := lineJSON{
		ID:       string(line.ID),
		Status:   string(line.StatusCode),
		Message:  line.Messages.Primary,
		Stations: []stationJSON{},
	}
	if meta := types.GetLine(line.ID); meta != nil {
		l.Name = meta.Name
	}
	if line.Messages.Secondary != nil {
		l.Details = *line.Messages.Secondary
	}
	for _, s := range line.Stations {
		station := stationJSON{
			Code:    s.Code,
			Name:    s.Name,
			Status:  string(s.StatusCode),
			Message: s.Messages.Primary,
		}
		if s.Transfer != nil {
			station.Transfer = string(*s.Transfer)
		}
		l.Stations = append(l.Stations, station)
	}
	return l
}

func newReportJSON(report *reconciler.Report) reportJSON {
	j := reportJSON{
		Start:      report.Start,
		DurationMS: report.Duration.Milliseconds(),
		Counts:     make(map[string]int),
		Results:    []resultJSON{},
	}
	if report.Err != nil {
		j.Error = report.Err.Error()
	}
	for _, outcome := range reconciler.Outcomes {
		j.Counts[string(outcome)] = report.Count(outcome)
	}
	for _, result := range report.Results {
		r := resultJSON{
			GuildID:   result.GuildID,
			LineID:    string(result.LineID),
			MessageID: result.MessageID,
			Outcome:   string(result.Outcome),
		}
		if result.Err != nil {
			r.Error = result.Err.Error()
		}
		j.Results = append(j.Results, r)
	}
	return j
}
