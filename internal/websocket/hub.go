// internal/websocket/hub.go
package websocket

import (
	"context"
	"sync"

	"unitevol-service/internal/domain/auth"
	wstypes "unitevol-service/internal/domain/websocket"
	"unitevol-service/internal/pkg/jwt"
	"unitevol-service/internal/pkg/metrics"

	"go.uber.org/zap"
)

// Authenticator validates an access token against the live session registry.
type Authenticator interface {
	ValidateToken(ctx context.Context, token string) (*jwt.Claims, error)
}

type Hub struct {
	// Registered clients by principal ID
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	done       chan struct{}

	auth    Authenticator
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// BroadcastMessage targets the clients of PrincipalIDs (all clients when
// nil) that subscribed to Channel. A non-empty SessionID narrows delivery
// to that session.
type BroadcastMessage struct {
	PrincipalIDs []string
	SessionID    string
	Channel      wstypes.ChannelType
	Message      *wstypes.WSMessage
}

func NewHub(authenticator Authenticator, m *metrics.Metrics, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
		auth:       authenticator,
		metrics:    m,
		logger:     logger,
	}
}

// AuthenticateClient validates the token and returns who the client is.
func (h *Hub) AuthenticateClient(ctx context.Context, token string) (*ClientAuth, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims, err := h.auth.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return &ClientAuth{
		PrincipalID: claims.PrincipalID,
		SessionID:   claims.ID,
		Role:        claims.Role,
		Email:       claims.Email,
	}, nil
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.BroadcastMessage(msg)
		}
	}
}

// Register hands a new client to the run loop. It reports false once the
// hub has stopped; the caller then owns the connection.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// remove hands a client back to the run loop, or drops it once the hub
// has stopped.
func (h *Hub) remove(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.principalID] == nil {
		h.clients[client.principalID] = make(map[*Client]bool)
	}
	h.clients[client.principalID][client] = true
	h.metrics.RealtimeConnected()

	h.logger.Info("realtime client connected",
		zap.String("principal_id", client.principalID),
		zap.String("session_id", client.sessionID),
		zap.Int("total", h.totalClients()),
	)

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeConnected, map[string]interface{}{
		"principal_id": client.principalID,
		"session_id":   client.sessionID,
		"channel":      wstypes.ProfileChannelKey(client.principalID),
	}))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.principalID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}

	delete(clients, client)
	client.Close()
	h.metrics.RealtimeDisconnected()
	if len(clients) == 0 {
		delete(h.clients, client.principalID)
	}

	h.logger.Info("realtime client disconnected",
		zap.String("principal_id", client.principalID),
		zap.String("session_id", client.sessionID),
		zap.Int("total", h.totalClients()),
	)
}

func (h *Hub) BroadcastMessage(msg *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	deliver := func(clients map[*Client]bool) {
		for client := range clients {
			if msg.SessionID != "" && client.sessionID != msg.SessionID {
				continue
			}
			if client.IsSubscribed(msg.Channel) {
				client.SendMessage(msg.Message)
			}
		}
	}

	if msg.PrincipalIDs == nil {
		for _, clients := range h.clients {
			deliver(clients)
		}
		return
	}
	for _, id := range msg.PrincipalIDs {
		deliver(h.clients[id])
	}
}

// PublishProfileChange pushes a profile row change to the clients of the
// principal that owns the row.
func (h *Hub) PublishProfileChange(change auth.ProfileChange) {
	if h.publish(&BroadcastMessage{
		PrincipalIDs: []string{change.PrincipalID},
		Channel:      wstypes.ChannelProfile,
		Message:      wstypes.NewMessage(wstypes.EventTypeProfileChange, change),
	}) {
		h.metrics.ProfileChangePublished()
	}
}

// ForceLogout tells the clients of a session (every session of the
// principal when sessionID is empty) that it has ended.
func (h *Hub) ForceLogout(principalID, sessionID, reason string) {
	h.publish(&BroadcastMessage{
		PrincipalIDs: []string{principalID},
		SessionID:    sessionID,
		Channel:      wstypes.ChannelSystem,
		Message: wstypes.NewMessage(wstypes.EventTypeForceLogout, wstypes.SessionEventData{
			SessionID: sessionID,
			Reason:    reason,
			Message:   "You have been logged out",
		}),
	})
}

func (h *Hub) publish(msg *BroadcastMessage) bool {
	select {
	case h.broadcast <- msg:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) GetConnectedClients(principalID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[principalID])
}

func (h *Hub) totalClients() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) shutdown() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, clients := range h.clients {
		for client := range clients {
			client.Close()
			h.metrics.RealtimeDisconnected()
		}
		delete(h.clients, id)
	}
}
