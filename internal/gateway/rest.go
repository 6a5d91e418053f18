package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultReplyTimeout bounds how long a REST caller waits for a reply.
const DefaultReplyTimeout = 10 * time.Second

// RESTAdapter ingests chat messages over HTTP. Each POST is its own channel
// and waits for the first reply sent to it, or for a prompt broadcast while
// it waits.
type RESTAdapter struct {
	handler MessageHandler
	waiting map[string]*restWaiter
	timeout time.Duration
	mu      sync.RWMutex
	logger  *zap.Logger
}

type restWaiter struct {
	userID string
	reply  chan *OutboundMessage
}

type restRequest struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Content  string `json:"content"`
}

// RESTReply is the response body of POST /message.
type RESTReply struct {
	*OutboundMessage
	// Summary holds one human-readable line per attached record.
	Summary []string `json:"summary,omitempty"`
}

// NewRESTAdapter creates a REST gateway adapter. A timeout of zero means
// DefaultReplyTimeout.
func NewRESTAdapter(timeout time.Duration, logger *zap.Logger) *RESTAdapter {
	if timeout <= 0 {
		timeout = DefaultReplyTimeout
	}
	return &RESTAdapter{
		waiting: make(map[string]*restWaiter),
		timeout: timeout,
		logger:  logger,
	}
}

func (a *RESTAdapter) Platform() string { return "rest" }

func (a *RESTAdapter) Connect(_ context.Context) error { return nil }

func (a *RESTAdapter) OnMessage(h MessageHandler) { a.handler = h }

func (a *RESTAdapter) Close() error { return nil }

// Status reports how many callers are waiting for a reply.
func (a *RESTAdapter) Status() AdapterStatus {
	a.mu.RLock()
	n := len(a.waiting)
	a.mu.RUnlock()
	return AdapterStatus{
		Platform:  "rest",
		Connected: true,
		Details:   fmt.Sprintf("%d waiting", n),
	}
}

// Send hands msg to the caller waiting on msg.ChannelID.
func (a *RESTAdapter) Send(_ context.Context, msg *OutboundMessage) error {
	a.mu.RLock()
	w, ok := a.waiting[msg.ChannelID]
	a.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no rest caller waiting on %s", msg.ChannelID)
	}
	if !w.offer(msg) {
		return fmt.Errorf("rest caller %s already answered", msg.ChannelID)
	}
	return nil
}

// Broadcast answers every waiting caller with the prompt and the records it
// was raised on.
func (a *RESTAdapter) Broadcast(_ context.Context, msg *BroadcastMessage) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for id, w := range a.waiting {
		w.offer(&OutboundMessage{
			Platform:  "rest",
			ChannelID: id,
			Content:   fmt.Sprintf("[%s] %s\n%s", msg.Type, msg.Title, msg.Content),
			Records:   msg.Records,
		})
	}
	return nil
}

func (w *restWaiter) offer(msg *OutboundMessage) bool {
	select {
	case w.reply <- msg:
		return true
	default:
		return false
	}
}

// Routes returns a chi router with REST gateway endpoints.
func (a *RESTAdapter) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/message", a.handleMessage)
	return r
}

// handleMessage passes the posted message to the handler and writes the
// reply. With ?format=text the reply is plain text, one line per record.
func (a *RESTAdapter) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req restRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, `{"error":"content is required"}`, http.StatusBadRequest)
		return
	}

	id := uuid.New().String()
	waiter := &restWaiter{userID: req.UserID, reply: make(chan *OutboundMessage, 1)}
	a.mu.Lock()
	a.waiting[id] = waiter
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.waiting, id)
		a.mu.Unlock()
	}()

	if a.handler != nil {
		a.handler(&InboundMessage{
			Platform:  "rest",
			ChannelID: id,
			UserID:    req.UserID,
			UserName:  req.UserName,
			Content:   req.Content,
			Timestamp: time.Now(),
		})
	}

	timer := time.NewTimer(a.timeout)
	defer timer.Stop()

	select {
	case msg := <-waiter.reply:
		a.writeReply(w, r, msg)
	case <-timer.C:
		a.logger.Debug("rest reply timed out", zap.String("user", waiter.userID))
		http.Error(w, `{"error":"response timeout"}`, http.StatusGatewayTimeout)
	case <-r.Context().Done():
	}
}

func (a *RESTAdapter) writeReply(w http.ResponseWriter, r *http.Request, msg *OutboundMessage) {
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, msg.Text())
		return
	}
	reply := RESTReply{OutboundMessage: msg}
	for _, env := range msg.Records {
		reply.Summary = append(reply.Summary, Describe(env))
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(reply); err != nil {
		a.logger.Warn("rest reply encode failed", zap.Error(err))
	}
}
