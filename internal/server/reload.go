package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/thypress/thypress/internal/logging"
)

// ReloadEvent is one message pushed to live-reload subscribers.
type ReloadEvent struct {
	Type string `json:"type"`
	Path string `json:"path,omitempty"`
}

// keepAliveInterval paces stream keep-alive comments.
const keepAliveInterval = 30 * time.Second

// subscriber is one connected live-reload client. A full send channel
// means the client is too slow and gets dropped.
type subscriber struct {
	send chan []byte
}

// ReloadHub fans reload events out to connected browsers over either a
// server-sent event stream or a websocket. A single hub goroutine owns
// the subscriber set; registration, deregistration, and broadcast all
// flow through channels.
type ReloadHub struct {
	log logging.Logger

	register    chan *subscriber
	unregister  chan *subscriber
	broadcast   chan []byte
	subscribers map[*subscriber]struct{}

	idleTimeout time.Duration
}

// NewReloadHub creates a hub; idleTimeout of zero means streams never
// idle out.
func NewReloadHub(log logging.Logger, idleTimeout time.Duration) *ReloadHub {
	return &ReloadHub{
		log:         log.WithComponent("livereload"),
		register:    make(chan *subscriber, 32),
		unregister:  make(chan *subscriber, 32),
		broadcast:   make(chan []byte, 256),
		subscribers: make(map[*subscriber]struct{}),
		idleTimeout: idleTimeout,
	}
}

// Run drives the hub until ctx is cancelled.
func (h *ReloadHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for sub := range h.subscribers {
				close(sub.send)
			}
			h.subscribers = make(map[*subscriber]struct{})
			return
		case sub := <-h.register:
			h.subscribers[sub] = struct{}{}
		case sub := <-h.unregister:
			if _, ok := h.subscribers[sub]; ok {
				delete(h.subscribers, sub)
				close(sub.send)
			}
		case message := <-h.broadcast:
			for sub := range h.subscribers {
				select {
				case sub.send <- message:
				default:
					// Slow subscriber: drop rather than block the hub.
					delete(h.subscribers, sub)
					close(sub.send)
				}
			}
		}
	}
}

// Broadcast queues an event for every subscriber. Fire-and-forget: a
// full hub queue drops the event.
func (h *ReloadHub) Broadcast(event ReloadEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- payload:
	default:
	}
}

// ServeHTTP handles the live-reload endpoint, upgrading to a websocket
// when the client asks for one and falling back to server-sent events.
func (h *ReloadHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		h.serveWebSocket(w, r)
		return
	}
	h.serveSSE(w, r)
}

func (h *ReloadHub) serveSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("event: connected\ndata: {}\n\n")); err != nil {
		return
	}
	flusher.Flush()

	sub := &subscriber{send: make(chan []byte, 16)}
	h.register <- sub
	defer func() { h.unregister <- sub }()

	ctx := r.Context()
	if h.idleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.idleTimeout)
		defer cancel()
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-sub.send:
			if !ok {
				return
			}
			if _, err := w.Write([]byte("event: reload\ndata: " + string(message) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *ReloadHub) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	if h.idleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.idleTimeout)
		defer cancel()
	}

	connected, _ := json.Marshal(ReloadEvent{Type: "connected"})
	if err := conn.Write(ctx, websocket.MessageText, connected); err != nil {
		return
	}

	sub := &subscriber{send: make(chan []byte, 16)}
	h.register <- sub
	defer func() { h.unregister <- sub }()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-sub.send:
			if !ok {
				return
			}
			if err := conn.Write(ctx, websocket.MessageText, message); err != nil {
				return
			}
		case <-keepAlive.C:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		}
	}
}
