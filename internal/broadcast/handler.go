package broadcast

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/storewatch/storewatch/internal/platform/httpx"
	"github.com/storewatch/storewatch/internal/shared"
	"github.com/storewatch/storewatch/internal/tenant"
)

// Handler exposes the permission stream over Server-Sent Events.
type Handler struct {
	logger      *slog.Logger
	broadcaster *Broadcaster
	validator   *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, broadcaster *Broadcaster) *Handler {
	return &Handler{
		logger:      logger,
		broadcaster: broadcaster,
		validator:   validator.New(),
	}
}

// MountRoutes registers the stream endpoint on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stream", h.stream)
}

type subscribeParams struct {
	UserID  string `validate:"required"`
	StoreID string `validate:"omitempty"`
}

// stream upgrades the request to an SSE channel subscribed to the caller's
// permission stream. The subscription lives until the client disconnects.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	if p == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "streaming unsupported")
		return
	}

	params := subscribeParams{
		UserID:  r.URL.Query().Get("user_id"),
		StoreID: r.URL.Query().Get("store_id"),
	}
	if params.UserID == "" {
		params.UserID = p.UserID
	}
	if params.StoreID == "" {
		if sc := tenant.StoreFromContext(r.Context()); sc != nil {
			params.StoreID = sc.ID
		}
	}
	if err := h.validator.Struct(params); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	conn := &sseConn{
		id:      p.SessionID,
		w:       w,
		flusher: flusher,
	}
	h.broadcaster.Subscribe(conn, p.UserID, params.UserID, params.StoreID)
	if conn.closed() {
		return
	}

	<-r.Context().Done()
	h.broadcaster.Unsubscribe(conn.id)
}

// sseConn adapts an SSE response to the Conn interface. Send serializes
// through a mutex so concurrent broadcasts cannot interleave frames.
type sseConn struct {
	id      string
	w       http.ResponseWriter
	flusher http.Flusher

	mu     sync.Mutex
	isDead bool
}

func (c *sseConn) ID() string { return c.id }

func (c *sseConn) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isDead {
		return http.ErrBodyNotAllowed
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := c.w.Write([]byte("event: " + string(msg.Kind) + "\ndata: ")); err != nil {
		c.isDead = true
		return err
	}
	if _, err := c.w.Write(append(data, '\n', '\n')); err != nil {
		c.isDead = true
		return err
	}
	c.flusher.Flush()
	return nil
}

func (c *sseConn) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isDead = true
}

func (c *sseConn) closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isDead
}
