package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/minuku/internal/event"
	"github.com/nidhogg/minuku/internal/gateway"
	"github.com/nidhogg/minuku/internal/metrics"
	"github.com/nidhogg/minuku/internal/record"
	"github.com/nidhogg/minuku/internal/situation"
	"github.com/nidhogg/minuku/internal/store"
	"github.com/nidhogg/minuku/internal/stream"
	"github.com/nidhogg/minuku/internal/streams"
	"go.uber.org/zap"
)

// ActionArchive serves archived actions.
type ActionArchive interface {
	RecentActions(ctx context.Context, limit int) ([]store.ActionRow, error)
}

// Deps are the components the API exposes. Streams, Situations and Bus are
// required; the rest may be nil.
type Deps struct {
	Streams     *streams.Manager
	Situations  *situation.Manager
	Bus         *event.Bus
	Actions     *ActionLog
	Archive     ActionArchive
	Gateway     *gateway.Gateway
	Broadcaster *gateway.Broadcaster
	REST        *gateway.RESTAdapter
	WebSocket   *gateway.WebSocketAdapter
	Metrics     *metrics.Metrics
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Deps
	started time.Time
	logger  *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(d Deps, logger *zap.Logger) *Handler {
	if d.Actions == nil {
		d.Actions = NewActionLog(0)
	}
	return &Handler{Deps: d, started: time.Now(), logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		// Record ingestion
		r.Post("/records/mood", h.postMood)
		r.Post("/records/location", h.postLocation)
		r.Post("/records/{type}", h.postGeneric)

		// Streams
		r.Get("/streams", h.listStreams)
		r.Get("/streams/{type}", h.getStream)
		r.Get("/streams/{type}/expected", h.getExpected)
		r.Put("/streams/{type}/active", h.setActive)

		// Situations and actions
		r.Get("/situations", h.listSituations)
		r.Get("/actions", h.listActions)

		// Gateway routes
		r.Get("/prompts", h.listPrompts)
		r.Post("/broadcast", h.sendBroadcast)
		r.Get("/gateway/status", h.gatewayStatus)
		if h.REST != nil {
			r.Mount("/gateway/rest", h.REST.Routes())
		}
		if h.WebSocket != nil {
			r.Handle("/feed", h.WebSocket)
		}
	})

	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics.Handler())
	}

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"service":    "minuku",
		"streams":    len(h.Streams.AllStreams()),
		"situations": len(h.Situations.Situations()),
		"uptime":     time.Since(h.started).Round(time.Second).String(),
	})
}

// --- records ---

type moodReporter interface {
	Report(ctx context.Context, mood, energy float64, at time.Time) (*record.Mood, error)
}

type locationReporter interface {
	Report(ctx context.Context, lat, lon, accuracy float64, at time.Time) (*record.Location, error)
}

type genericReporter interface {
	Report(ctx context.Context, data map[string]any, at time.Time) (*record.Generic, error)
}

type moodRequest struct {
	Mood      *float64  `json:"mood"`
	Energy    *float64  `json:"energy"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) postMood(w http.ResponseWriter, r *http.Request) {
	var req moodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Mood == nil || req.Energy == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "mood and energy are required"})
		return
	}
	g := h.generator(w, record.TypeMood)
	if g == nil {
		return
	}
	gen, ok := g.(moodReporter)
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "mood stream does not accept reports"})
		return
	}
	m, err := gen.Report(r.Context(), *req.Mood, *req.Energy, req.CreatedAt)
	if err != nil {
		h.writePushError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record.Wrap(m))
}

type locationRequest struct {
	Latitude  *float64  `json:"latitude"`
	Longitude *float64  `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) postLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "latitude and longitude are required"})
		return
	}
	g := h.generator(w, record.TypeLocation)
	if g == nil {
		return
	}
	gen, ok := g.(locationReporter)
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "location stream does not accept reports"})
		return
	}
	l, err := gen.Report(r.Context(), *req.Latitude, *req.Longitude, req.Accuracy, req.CreatedAt)
	if err != nil {
		h.writePushError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record.Wrap(l))
}

type genericRequest struct {
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
}

func (h *Handler) postGeneric(w http.ResponseWriter, r *http.Request) {
	t := record.Type(chi.URLParam(r, "type"))
	var req genericRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	g := h.generator(w, t)
	if g == nil {
		return
	}
	gen, ok := g.(genericReporter)
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "stream " + string(t) + " does not accept free-form records",
		})
		return
	}
	rec, err := gen.Report(r.Context(), req.Data, req.CreatedAt)
	if err != nil {
		h.writePushError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record.Wrap(rec))
}

// generator looks up the generator for t, writing a 404 if there is none.
func (h *Handler) generator(w http.ResponseWriter, t record.Type) stream.Generator {
	g, err := h.Streams.GeneratorFor(t)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return nil
	}
	return g
}

func (h *Handler) writePushError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, record.ErrInvalidRecord):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, streams.ErrStreamNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, streams.ErrCyclicDependency):
		writeError(w, http.StatusConflict, err)
	default:
		h.logger.Error("push failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
	}
}

// --- streams ---

type streamView struct {
	Type     record.Type      `json:"type"`
	Kind     stream.Kind      `json:"kind"`
	Capacity int              `json:"capacity"`
	Len      int              `json:"len"`
	Current  *record.Envelope `json:"current,omitempty"`
	Previous *record.Envelope `json:"previous,omitempty"`
}

func newStreamView(s *stream.Stream) streamView {
	v := streamView{Type: s.Type(), Kind: s.Kind(), Capacity: s.Cap(), Len: s.Len()}
	p := s.Pair()
	if p.Current != nil {
		env := record.Wrap(p.Current)
		v.Current = &env
	}
	if p.Previous != nil {
		env := record.Wrap(p.Previous)
		v.Previous = &env
	}
	return v
}

func (h *Handler) listStreams(w http.ResponseWriter, r *http.Request) {
	var list []*stream.Stream
	switch kind := stream.Kind(r.URL.Query().Get("kind")); kind {
	case "":
		list = h.Streams.AllStreams()
	case stream.FromDevice, stream.Derived:
		list = h.Streams.Streams(kind)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown kind " + string(kind)})
		return
	}
	out := make([]streamView, 0, len(list))
	for _, s := range list {
		out = append(out, newStreamView(s))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"streams": out,
		"stats":   h.Streams.Stats(),
	})
}

func (h *Handler) getStream(w http.ResponseWriter, r *http.Request) {
	t := record.Type(chi.URLParam(r, "type"))
	s, err := h.Streams.StreamFor(t)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	n, err := queryInt(r, "n", s.Cap())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stream":   newStreamView(s),
		"history":  record.WrapAll(s.History(n)),
		"interest": h.Situations.Interested(t),
	})
}

// getExpected asks over the bus whether data is expected for the type.
func (h *Handler) getExpected(w http.ResponseWriter, r *http.Request) {
	t := record.Type(chi.URLParam(r, "type"))
	if !h.Streams.Has(t) {
		writeError(w, http.StatusNotFound, streams.ErrStreamNotFound)
		return
	}

	q := event.NewIsDataExpected(t)
	var (
		answer   event.DataExpectation
		answered bool
	)
	sub := h.Bus.Subscribe(event.KindDataExpectation, func(_ context.Context, ev event.Event) {
		if de, ok := ev.(event.DataExpectation); ok && de.QueryID == q.ID() {
			answer, answered = de, true
		}
	})
	h.Bus.Publish(r.Context(), q)
	sub.Close()

	if !answered {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no answer to data expectation query"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"type":     t,
		"expected": answer.Expected,
	})
}

type activator interface {
	SetActive(on bool)
	Active() bool
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	t := record.Type(chi.URLParam(r, "type"))
	var req struct {
		Active *bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "active is required"})
		return
	}
	g := h.generator(w, t)
	if g == nil {
		return
	}
	a, ok := g.(activator)
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "generator cannot be switched"})
		return
	}
	a.SetActive(*req.Active)
	h.logger.Info("generator switched", zap.String("type", string(t)), zap.Bool("active", *req.Active))
	writeJSON(w, http.StatusOK, map[string]interface{}{"type": t, "active": a.Active()})
}

// --- situations and actions ---

func (h *Handler) listSituations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Situations.Situations())
}

func (h *Handler) listActions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if r.URL.Query().Get("source") == "archive" {
		if h.Archive == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "archive not configured"})
			return
		}
		rows, err := h.Archive.RecentActions(r.Context(), limit)
		if err != nil {
			h.logger.Error("archive query failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, rows)
		return
	}
	writeJSON(w, http.StatusOK, h.Actions.Recent(limit))
}

// --- gateway ---

func (h *Handler) listPrompts(w http.ResponseWriter, r *http.Request) {
	if h.Broadcaster == nil {
		writeJSON(w, http.StatusOK, []gateway.BroadcastRecord{})
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Broadcaster.History(limit))
}

func (h *Handler) sendBroadcast(w http.ResponseWriter, r *http.Request) {
	if h.Broadcaster == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "gateway not initialized"})
		return
	}
	var msg gateway.BroadcastMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if msg.Type == "" {
		msg.Type = gateway.BroadcastNotice
	}
	if err := h.Broadcaster.Send(r.Context(), &msg); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (h *Handler) gatewayStatus(w http.ResponseWriter, r *http.Request) {
	if h.Gateway == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "gateway not initialized"})
		return
	}
	writeJSON(w, http.StatusOK, h.Gateway.StatusAll())
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}
