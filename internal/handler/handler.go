package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"nfccheckin/internal/auth"
	"nfccheckin/internal/checkin"
	"nfccheckin/internal/metrics"
	"nfccheckin/internal/terminal"
)

const (
	statusSuccess  = "success"
	statusError    = "error"
	statusNotFound = "not_found"
)

// request carries every input any action reads. Field names are the wire
// names scanners and the report page already send.
type request struct {
	Action     string `json:"action" form:"action"`
	NFCID      string `json:"nfc_id" form:"nfc_id"`
	TerminalID string `json:"terminal_id" form:"terminal_id"`
	Event      string `json:"event" form:"event"`
	TimeSlot   string `json:"timeSlot" form:"timeSlot"`
	Role       string `json:"role" form:"role"`
}

type actionFunc func(c *gin.Context, req request)

// Handler serves the check-in API.
type Handler struct {
	svc       *checkin.Service
	terminals *terminal.Service
	log       *slog.Logger
	actions   map[checkin.Action]actionFunc
}

// New builds a handler around svc. terminals may be nil, which disables the
// terminal token endpoints.
func New(svc *checkin.Service, terminals *terminal.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{svc: svc, terminals: terminals, log: logger}
	h.actions = map[checkin.Action]actionFunc{
		checkin.ActionLog:            h.logVisit,
		checkin.ActionLookup:         h.lookup,
		checkin.ActionCheckIn:        h.checkIn,
		checkin.ActionLogs:           h.listVisits,
		checkin.ActionCount:          h.count,
		checkin.ActionReportRoles:    h.reportRoles,
		checkin.ActionReportUsers:    h.reportUsers,
		checkin.ActionReportTerminal: h.reportTerminal,
	}
	return h
}

// maxBodyBytes caps a request body; scanner payloads are a few fields.
const maxBodyBytes = 64 << 10

var errBadBody = errors.New("invalid JSON body")

// bind reads inputs from a non-empty JSON object body and falls back to the
// query string when the body is empty, {} or null. Scalar body values are
// taken as text so numeric tag UIDs survive. A body that is not a JSON
// object fails instead of silently switching to the query string.
func bind(c *gin.Context) (request, error) {
	var req request
	var body []byte
	if c.Request.Body != nil {
		var err error
		body, err = io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
		if err != nil {
			return req, errBadBody
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
	}

	if len(bytes.TrimSpace(body)) > 0 {
		fields, err := decodeFields(body)
		if err != nil {
			return req, errBadBody
		}
		if len(fields) > 0 {
			return requestFromFields(fields), nil
		}
	}
	_ = c.ShouldBindQuery(&req)
	return req, nil
}

func decodeFields(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errBadBody
	}
	return fields, nil
}

func requestFromFields(fields map[string]any) request {
	text := func(key string) string {
		switch v := fields[key].(type) {
		case string:
			return v
		case json.Number, bool:
			return fmt.Sprint(v)
		default:
			return ""
		}
	}
	return request{
		Action:     text("action"),
		NFCID:      text("nfc_id"),
		TerminalID: text("terminal_id"),
		Event:      text("event"),
		TimeSlot:   text("timeSlot"),
		Role:       text("role"),
	}
}

func badBody(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"status": statusError, "message": "Invalid JSON body"})
}

// route adapts an action to a per-path gin handler.
func (h *Handler) route(action checkin.Action) gin.HandlerFunc {
	fn := h.actions[action]
	return func(c *gin.Context) {
		req, err := bind(c)
		if err != nil {
			badBody(c)
			return
		}
		fn(c, req)
	}
}

// Dispatch serves the legacy single endpoint, selecting the action from the
// action query parameter or body field.
func (h *Handler) Dispatch(c *gin.Context) {
	req, err := bind(c)
	if err != nil {
		badBody(c)
		return
	}
	name := c.Query("action")
	if name == "" {
		name = req.Action
	}
	action, ok := checkin.ParseAction(strings.TrimSpace(name))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": statusError, "message": "Invalid action"})
		return
	}
	h.actions[action](c, req)
}

func (h *Handler) logVisit(c *gin.Context, req request) {
	err := h.svc.RecordVisit(c.Request.Context(), req.NFCID, req.TerminalID, auth.TerminalFromContext(c))
	if err != nil {
		h.fail(c, checkin.ActionLog, err)
		return
	}
	observe(checkin.ActionLog, metrics.OutcomeOK)
	c.JSON(http.StatusOK, gin.H{"status": statusSuccess, "message": "Logged successfully"})
}

func (h *Handler) lookup(c *gin.Context, req request) {
	res, err := h.svc.Lookup(c.Request.Context(), req.NFCID, req.TerminalID)
	if err != nil {
		h.fail(c, checkin.ActionLookup, err)
		return
	}
	h.writeLookup(c, checkin.ActionLookup, res)
}

func (h *Handler) checkIn(c *gin.Context, req request) {
	res, err := h.svc.CheckIn(c.Request.Context(), req.NFCID, req.TerminalID, auth.TerminalFromContext(c))
	if err != nil {
		h.fail(c, checkin.ActionCheckIn, err)
		return
	}
	h.writeLookup(c, checkin.ActionCheckIn, res)
}

func (h *Handler) writeLookup(c *gin.Context, action checkin.Action, res checkin.LookupResult) {
	outcome := metrics.OutcomeOK
	if res.IsDuplicate {
		outcome = metrics.OutcomeDuplicate
	}
	observe(action, outcome)
	c.JSON(http.StatusOK, gin.H{
		"status":      statusSuccess,
		"row":         res.Registrant.Row(),
		"message":     res.Message,
		"isDuplicate": res.IsDuplicate,
		"terminal":    res.Label,
	})
}

func (h *Handler) count(c *gin.Context, req request) {
	n, err := h.svc.CountVisits(c.Request.Context(), req.TerminalID)
	if err != nil {
		h.fail(c, checkin.ActionCount, err)
		return
	}
	observe(checkin.ActionCount, metrics.OutcomeOK)
	c.JSON(http.StatusOK, gin.H{"status": statusSuccess, "total_count": n})
}

func (h *Handler) reportRoles(c *gin.Context, req request) {
	rep, err := h.svc.ReportRoles(c.Request.Context(), req.Event, req.TimeSlot)
	if err != nil {
		h.fail(c, checkin.ActionReportRoles, err)
		return
	}
	observe(checkin.ActionReportRoles, metrics.OutcomeOK)
	c.JSON(http.StatusOK, gin.H{
		"status":       statusSuccess,
		"event":        rep.Event,
		"timeSlot":     rep.TimeSlot,
		"total_logins": rep.Total,
		"roles":        rep.Roles,
	})
}

func (h *Handler) reportUsers(c *gin.Context, req request) {
	users, err := h.svc.ReportUsers(c.Request.Context(), req.Event, req.TimeSlot, req.Role)
	if err != nil {
		h.fail(c, checkin.ActionReportUsers, err)
		return
	}
	observe(checkin.ActionReportUsers, metrics.OutcomeOK)
	c.JSON(http.StatusOK, gin.H{
		"status": statusSuccess,
		"role":   strings.TrimSpace(req.Role),
		"users":  users,
	})
}

func (h *Handler) reportTerminal(c *gin.Context, req request) {
	rep, err := h.svc.ReportByTerminal(c.Request.Context(), req.TerminalID)
	if err != nil {
		h.fail(c, checkin.ActionReportTerminal, err)
		return
	}
	observe(checkin.ActionReportTerminal, metrics.OutcomeOK)
	c.JSON(http.StatusOK, gin.H{
		"status":      statusSuccess,
		"terminal_id": rep.Terminal,
		"total_scans": rep.Total,
		"report":      rep.Labels,
	})
}

type logEntry struct {
	ID         int64   `json:"id"`
	Timestamp  string  `json:"timestamp"`
	ScannedID  string  `json:"scanned_id"`
	User       string  `json:"user"`
	TerminalID *string `json:"terminal_id"`
}

func (h *Handler) listVisits(c *gin.Context, _ request) {
	visits, err := h.svc.ListVisits(c.Request.Context())
	if err != nil {
		h.fail(c, checkin.ActionLogs, err)
		return
	}
	logs := make([]logEntry, 0, len(visits))
	for _, v := range visits {
		e := logEntry{
			ID:        v.ID,
			Timestamp: v.At.Format("2006-01-02 15:04:05"),
			ScannedID: v.TagID,
			User:      v.Label,
		}
		if v.Terminal != "" {
			id := v.Terminal
			e.TerminalID = &id
		}
		logs = append(logs, e)
	}
	observe(checkin.ActionLogs, metrics.OutcomeOK)
	c.JSON(http.StatusOK, gin.H{"status": statusSuccess, "logs": logs})
}

// Live returns the running counter for a label kept by the visit consumer.
func (h *Handler) Live(c *gin.Context) {
	req, err := bind(c)
	if err != nil {
		badBody(c)
		return
	}
	n, err := h.svc.LiveCount(c.Request.Context(), req.TerminalID)
	if err != nil {
		h.fail(c, "live", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      statusSuccess,
		"terminal_id": strings.TrimSpace(req.TerminalID),
		"live_count":  n,
	})
}

// RegisterTerminal records a scanner and issues it a token pair.
func (h *Handler) RegisterTerminal(c *gin.Context) {
	var req struct {
		TerminalID string `json:"terminal_id"`
	}
	_ = c.ShouldBindJSON(&req)
	pair, err := h.terminals.Register(c.Request.Context(), req.TerminalID)
	if err != nil {
		if errors.Is(err, terminal.ErrTerminalRequired) {
			c.JSON(http.StatusBadRequest, gin.H{"status": statusError, "message": err.Error()})
			return
		}
		h.log.Error("terminal register failed", "terminal", req.TerminalID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": statusError, "message": "Internal Server Error: " + err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": statusSuccess, "tokens": pair})
}

// RefreshTerminal exchanges a refresh token for a new pair.
func (h *Handler) RefreshTerminal(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": statusError, "message": "refresh_token required"})
		return
	}
	pair, err := h.terminals.Refresh(c.Request.Context(), req.RefreshToken)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": statusSuccess, "tokens": pair})
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrWrongType), errors.Is(err, terminal.ErrTokenReused):
		c.JSON(http.StatusUnauthorized, gin.H{"status": statusError, "message": err.Error()})
	default:
		h.log.Error("terminal refresh failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": statusError, "message": "Internal Server Error: " + err.Error()})
	}
}

// fail maps service errors onto the wire contract.
func (h *Handler) fail(c *gin.Context, action checkin.Action, err error) {
	var ve *checkin.ValidationError
	switch {
	case errors.As(err, &ve):
		observe(action, metrics.OutcomeInvalid)
		c.JSON(http.StatusBadRequest, gin.H{"status": statusError, "message": ve.Message})
	case errors.Is(err, checkin.ErrNotFound):
		observe(action, metrics.OutcomeNotFound)
		c.JSON(http.StatusNotFound, gin.H{"status": statusNotFound, "message": err.Error()})
	case errors.Is(err, checkin.ErrLiveUnavailable):
		observe(action, metrics.OutcomeError)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": statusError, "message": err.Error()})
	default:
		observe(action, metrics.OutcomeError)
		_ = c.Error(err)
		h.log.Error("action failed", "action", string(action), "error", err, "request_id", c.GetString("request_id"))
		c.JSON(http.StatusInternalServerError, gin.H{"status": statusError, "message": "Internal Server Error: " + err.Error()})
	}
}

func observe(action checkin.Action, outcome string) {
	metrics.Scans.WithLabelValues(string(action), outcome).Inc()
}
