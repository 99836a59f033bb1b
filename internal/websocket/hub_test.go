package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"unitevol-service/internal/domain/auth"
	wstypes "unitevol-service/internal/domain/websocket"
	"unitevol-service/internal/pkg/jwt"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type tokenTable map[string]*jwt.Claims

func (t tokenTable) ValidateToken(_ context.Context, token string) (*jwt.Claims, error) {
	if c, ok := t[token]; ok {
		return c, nil
	}
	return nil, errors.New("unknown token")
}

func claims(principalID, jti string) *jwt.Claims {
	c := &jwt.Claims{PrincipalID: principalID, Role: "volunteer"}
	c.ID = jti
	return c
}

// startHub serves a minimal upgrade endpoint backed by a running hub.
func startHub(t *testing.T, tokens tokenTable) (*Hub, string) {
	t.Helper()
	hub := NewHub(tokens, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, err := hub.AuthenticateClient(r.Context(), r.URL.Query().Get("token"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn, a)
		if !hub.Register(client) {
			conn.Close()
			return
		}
		go client.WritePump()
		go client.ReadPump()
	}))

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, want wstypes.EventType) *wstypes.WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		msg, err := wstypes.ParseMessage(data)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if msg.Type == want {
			return msg
		}
	}
}

func subscribeProfile(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	req := wstypes.NewMessage(wstypes.EventTypeSubscribe, wstypes.SubscribeRequest{
		Channels: []wstypes.ChannelType{wstypes.ChannelProfile},
	})
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	readUntil(t, conn, wstypes.EventTypeSubscribe)
}

func TestProfileChangeReachesOnlyOwner(t *testing.T) {
	hub, url := startHub(t, tokenTable{
		"tok-a": claims("01A", "jti-a"),
		"tok-b": claims("01B", "jti-b"),
	})

	a := dial(t, url, "tok-a")
	b := dial(t, url, "tok-b")
	readUntil(t, a, wstypes.EventTypeConnected)
	readUntil(t, b, wstypes.EventTypeConnected)
	subscribeProfile(t, a)
	subscribeProfile(t, b)

	name := "Changed"
	hub.PublishProfileChange(auth.ProfileChange{
		EventType:   auth.ChangeUpdate,
		PrincipalID: "01A",
		New:         auth.ProfilePatch{DisplayName: &name},
	})

	msg := readUntil(t, a, wstypes.EventTypeProfileChange)
	var change auth.ProfileChange
	if err := msg.DecodeData(&change); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if change.PrincipalID != "01A" || change.New.DisplayName == nil || *change.New.DisplayName != "Changed" {
		t.Fatalf("unexpected change: %+v", change)
	}

	// b must not see a's change; a ping round trip proves the queue is drained.
	if err := b.WriteJSON(wstypes.NewMessage(wstypes.EventTypePing, nil)); err != nil {
		t.Fatal(err)
	}
	b.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := b.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		m, _ := wstypes.ParseMessage(data)
		if m.Type == wstypes.EventTypeProfileChange {
			t.Fatal("profile change leaked to another principal")
		}
		if m.Type == wstypes.EventTypePong {
			break
		}
	}
}

func TestUnsubscribedClientGetsNoProfileChanges(t *testing.T) {
	hub, url := startHub(t, tokenTable{"tok-a": claims("01A", "jti-a")})

	a := dial(t, url, "tok-a")
	readUntil(t, a, wstypes.EventTypeConnected)

	hub.PublishProfileChange(auth.ProfileChange{EventType: auth.ChangeUpdate, PrincipalID: "01A"})

	if err := a.WriteJSON(wstypes.NewMessage(wstypes.EventTypePing, nil)); err != nil {
		t.Fatal(err)
	}
	a.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := a.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		m, _ := wstypes.ParseMessage(data)
		if m.Type == wstypes.EventTypeProfileChange {
			t.Fatal("change delivered without subscription")
		}
		if m.Type == wstypes.EventTypePong {
			return
		}
	}
}

func TestForceLogoutTargetsSession(t *testing.T) {
	hub, url := startHub(t, tokenTable{
		"tok-1": claims("01A", "jti-1"),
		"tok-2": claims("01A", "jti-2"),
	})

	one := dial(t, url, "tok-1")
	two := dial(t, url, "tok-2")
	readUntil(t, one, wstypes.EventTypeConnected)
	readUntil(t, two, wstypes.EventTypeConnected)

	hub.ForceLogout("01A", "jti-1", "signed out")

	msg := readUntil(t, one, wstypes.EventTypeForceLogout)
	var data wstypes.SessionEventData
	if err := msg.DecodeData(&data); err != nil {
		t.Fatal(err)
	}
	if data.SessionID != "jti-1" {
		t.Fatalf("session = %q", data.SessionID)
	}

	if err := two.WriteJSON(wstypes.NewMessage(wstypes.EventTypePing, nil)); err != nil {
		t.Fatal(err)
	}
	two.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := two.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		m, _ := wstypes.ParseMessage(data)
		if m.Type == wstypes.EventTypeForceLogout {
			t.Fatal("other session was logged out")
		}
		if m.Type == wstypes.EventTypePong {
			return
		}
	}
}

func TestRejectsUnknownToken(t *testing.T) {
	_, url := startHub(t, tokenTable{})

	_, resp, err := websocket.DefaultDialer.Dial(url+"?token=nope", nil)
	if err == nil {
		t.Fatal("expected dial failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("response = %+v", resp)
	}
}

func TestSubscribeRejectsUnknownChannel(t *testing.T) {
	c := &Client{subscriptions: map[wstypes.ChannelType]bool{}}
	if c.Subscribe("audit") {
		t.Fatal("unknown channel accepted")
	}
	if !c.Subscribe(wstypes.ChannelProfile) || !c.IsSubscribed(wstypes.ChannelProfile) {
		t.Fatal("profile channel not accepted")
	}
}

func TestRegisterAfterShutdown(t *testing.T) {
	hub := NewHub(tokenTable{}, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	registered := make(chan bool, 1)
	go func() { registered <- hub.Register(&Client{}) }()

	select {
	case ok := <-registered:
		if ok {
			t.Fatal("stopped hub accepted a client")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("register blocked on a stopped hub")
	}
}
