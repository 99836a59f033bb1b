package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"unitevol-service/internal/domain/auth"
	wstypes "unitevol-service/internal/domain/websocket"
	xerrors "unitevol-service/internal/pkg/errors"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SubscribeToProfile opens a realtime connection, joins the profile
// channel and filters its events down to UPDATEs of id.
func (g *HTTPGateway) SubscribeToProfile(ctx context.Context, id string, onChange func(auth.ProfileChange)) (Disposer, error) {
	tokens, err := g.tokens.Load(ctx)
	if err != nil {
		return nil, err
	}
	if tokens.AccessToken == "" {
		return nil, xerrors.ErrNotAuthenticated
	}

	endpoint, err := realtimeURL(g.baseURL, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: realtime dial: %v", xerrors.ErrNetwork, err)
	}

	subscribe := wstypes.NewMessage(wstypes.EventTypeSubscribe, wstypes.SubscribeRequest{
		Channels: []wstypes.ChannelType{wstypes.ChannelProfile},
	})
	if err := conn.WriteJSON(subscribe); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: realtime subscribe: %v", xerrors.ErrNetwork, err)
	}

	sub := &subscription{
		conn:     conn,
		id:       id,
		onChange: onChange,
		logger:   g.logger.With(zap.String("channel", wstypes.ProfileChannelKey(id))),
		done:     make(chan struct{}),
	}
	go sub.readLoop()

	return sub.dispose, nil
}

type subscription struct {
	conn     *websocket.Conn
	id       string
	onChange func(auth.ProfileChange)
	logger   *zap.Logger

	mu       sync.Mutex
	disposed bool
	once     sync.Once
	done     chan struct{}
}

func (s *subscription) readLoop() {
	defer close(s.done)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.isDisposed() {
				s.logger.Warn("realtime connection lost", zap.Error(err))
			}
			return
		}

		msg, err := wstypes.ParseMessage(data)
		if err != nil {
			s.logger.Warn("dropping malformed realtime frame", zap.Error(err))
			continue
		}

		switch msg.Type {
		case wstypes.EventTypeProfileChange:
			var change auth.ProfileChange
			if err := msg.DecodeData(&change); err != nil {
				s.logger.Warn("dropping malformed profile change", zap.Error(err))
				continue
			}
			if change.EventType != auth.ChangeUpdate || change.PrincipalID != s.id {
				continue
			}
			s.deliver(change)

		case wstypes.EventTypeForceLogout:
			s.logger.Info("realtime session ended by provider")
			return
		}
	}
}

// deliver runs the callback unless the subscription was disposed. Holding
// mu across the call is what lets dispose promise no later callbacks.
func (s *subscription) deliver(change auth.ProfileChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.onChange(change)
}

func (s *subscription) isDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

func (s *subscription) dispose() {
	s.once.Do(func() {
		s.mu.Lock()
		s.disposed = true
		s.mu.Unlock()

		s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	})
}

func realtimeURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid identity url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/realtime"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}
