package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"
)

func resolveFake(_ context.Context, token string) ([]string, error) {
	switch token {
	case "admin-token":
		return []string{RoomAdmins}, nil
	case "user-token":
		return []string{UserRoom(3)}, nil
	}
	return nil, errors.New("invalid token")
}

func TestHandleWebSocketDelivers(t *testing.T) {
	hub := NewHub(slog.Default())
	srv := httptest.NewServer(HandleWebSocket(hub, resolveFake, nil, slog.Default()))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=user-token"
	conn, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	deadline := time.Now().Add(2 * time.Second)
	for hub.RoomSize(UserRoom(3)) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never joined its room")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish(UserRoom(3), NewMessage(EventComplaintUpdate, 11, map[string]string{"status": "approved"}))

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Event != EventComplaintUpdate || got.ID != 11 {
		t.Errorf("message = %+v", got)
	}

	conn.Close(ws.StatusNormalClosure, "")
	deadline = time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client was not unregistered after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandleWebSocketRejectsBadTokens(t *testing.T) {
	hub := NewHub(slog.Default())
	h := HandleWebSocket(hub, resolveFake, nil, slog.Default())

	for _, target := range []string{"/ws", "/ws?token=nope"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", target, rec.Code)
		}
	}
}

func TestMissedThreshold(t *testing.T) {
	c := mockClient(NewHub(slog.Default()), RoomAdmins)
	for i := 1; i < maxDropped; i++ {
		if c.missed() {
			t.Fatalf("flagged slow after %d misses", i)
		}
	}
	if !c.missed() {
		t.Errorf("expected slow after %d misses", maxDropped)
	}
}
