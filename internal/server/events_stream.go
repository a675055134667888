package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/niq79/trading-bot-sub001/internal/events"
	"github.com/niq79/trading-bot-sub001/internal/utils"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	streamBuffer    = 100
	streamWriteWait = 10 * time.Second
	streamPingEvery = 30 * time.Second
)

// streamClient is one connected websocket consumer
type streamClient struct {
	ch      chan *events.Event
	allowed map[events.EventType]bool // nil means all types
}

// StreamHandler pushes run progress events to websocket clients
type StreamHandler struct {
	log     zerolog.Logger
	mu      sync.Mutex
	clients map[*streamClient]struct{}
}

// NewStreamHandler creates the stream handler. It subscribes to the
// bus once at construction; connections come and go against that
// single subscription.
func NewStreamHandler(bus *events.Bus, log zerolog.Logger) *StreamHandler {
	h := &StreamHandler{
		log:     log.With().Str("handler", "runs_stream").Logger(),
		clients: make(map[*streamClient]struct{}),
	}

	for _, eventType := range []events.EventType{
		events.RunStateChanged,
		events.OrdersPlanned,
		events.OrdersSubmitted,
		events.SignalGateFired,
		events.SweepCompleted,
		events.BackupCompleted,
	} {
		bus.Subscribe(eventType, h.broadcast)
	}

	return h
}

// broadcast fans an event out to connected clients. Slow clients drop
// events rather than blocking the publisher.
func (h *StreamHandler) broadcast(event *events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if client.allowed != nil && !client.allowed[event.Type] {
			continue
		}
		select {
		case client.ch <- event:
		default:
			h.log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Stream client too slow, dropping event")
		}
	}
}

// ServeHTTP handles GET /api/runs/stream. The optional "types" query
// parameter narrows the stream to a comma-separated set of event types.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.CloseNow()

	client := &streamClient{ch: make(chan *events.Event, streamBuffer)}
	if types := utils.ParseCSV(r.URL.Query().Get("types")); len(types) > 0 {
		client.allowed = make(map[events.EventType]bool)
		for _, t := range types {
			client.allowed[events.EventType(t)] = true
		}
	}

	h.addClient(client)
	defer h.removeClient(client)

	h.log.Info().Msg("Stream client connected")

	// The stream is write-only; CloseRead surfaces client disconnects
	// through the returned context.
	ctx := conn.CloseRead(r.Context())

	ping := time.NewTicker(streamPingEvery)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			h.log.Info().Msg("Stream client disconnected")
			return
		case <-ping.C:
			if err := h.ping(ctx, conn); err != nil {
				h.log.Debug().Err(err).Msg("Stream ping failed, closing")
				return
			}
		case event := <-client.ch:
			if err := h.write(ctx, conn, event); err != nil {
				h.log.Debug().Err(err).Msg("Stream write failed, closing")
				return
			}
		}
	}
}

func (h *StreamHandler) addClient(client *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
}

func (h *StreamHandler) removeClient(client *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
}

func (h *StreamHandler) write(ctx context.Context, conn *websocket.Conn, event *events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode stream event")
		return nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, streamWriteWait)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func (h *StreamHandler) ping(ctx context.Context, conn *websocket.Conn) error {
	pingCtx, cancel := context.WithTimeout(ctx, streamWriteWait)
	defer cancel()
	return conn.Ping(pingCtx)
}
