package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tablightapp/tablight/internal/tabs"
)

func TestHubUnavailableWithoutBridge(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	if _, err := hub.EnumerateAll(ctx); !errors.Is(err, tabs.ErrUnavailable) {
		t.Errorf("EnumerateAll: expected ErrUnavailable, got %v", err)
	}
	if _, err := hub.GetByID(ctx, "t1"); !errors.Is(err, tabs.ErrUnavailable) {
		t.Errorf("GetByID: expected ErrUnavailable, got %v", err)
	}
	if err := hub.Activate(ctx, "t1", "w1"); !errors.Is(err, tabs.ErrUnavailable) {
		t.Errorf("Activate: expected ErrUnavailable, got %v", err)
	}
	if _, err := hub.EnumerateRecent(ctx, 5); !errors.Is(err, tabs.ErrUnavailable) {
		t.Errorf("EnumerateRecent: expected ErrUnavailable, got %v", err)
	}
	if _, err := hub.Bookmarks().EnumerateTree(ctx); !errors.Is(err, tabs.ErrUnavailable) {
		t.Errorf("EnumerateTree: expected ErrUnavailable, got %v", err)
	}
	if hub.Connected() {
		t.Error("Connected must be false without a bridge")
	}
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func dialBridge(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/bridge"), nil)
	if err != nil {
		t.Fatalf("dial bridge: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBridgeAttachEmitsAttachedEvent(t *testing.T) {
	srv := NewServer(Config{}, &fakeEngine{}, NewHub())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	dialBridge(t, ts)

	select {
	case ev := <-srv.hub.Events():
		if ev.Kind != tabs.EventAttached {
			t.Errorf("Expected attached event, got %s", ev.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("No attached event after bridge connect")
	}
	if !srv.hub.Connected() {
		t.Error("Hub should report connected")
	}
}

func TestBridgeCallRoundTrip(t *testing.T) {
	srv := NewServer(Config{}, &fakeEngine{}, NewHub())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialBridge(t, ts)
	<-srv.hub.Events() // attached

	// Play the browser side: answer the enumerate call.
	done := make(chan error, 1)
	go func() {
		var call bridgeCall
		if err := conn.ReadJSON(&call); err != nil {
			done <- err
			return
		}
		if call.Method != methodTabsEnumerate {
			done <- errors.New("unexpected method " + call.Method)
			return
		}
		payload, _ := json.Marshal([]wireTab{
			{ID: "t1", WindowID: "w1", Title: "GitHub", URL: "https://github.com", LastAccessed: 1700000000000},
		})
		done <- conn.WriteJSON(map[string]any{
			"type":    "result",
			"callId":  call.ID,
			"payload": json.RawMessage(payload),
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := srv.hub.EnumerateAll(ctx)
	if err != nil {
		t.Fatalf("EnumerateAll: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("browser side: %v", err)
	}

	if len(result) != 1 || result[0].ID != "t1" || result[0].Title != "GitHub" {
		t.Fatalf("Unexpected tabs: %+v", result)
	}
	if result[0].LastAccessed.IsZero() {
		t.Error("LastAccessed not converted from epoch millis")
	}
}

func TestBridgeCallErrorResult(t *testing.T) {
	srv := NewServer(Config{}, &fakeEngine{}, NewHub())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialBridge(t, ts)
	<-srv.hub.Events()

	go func() {
		var call bridgeCall
		if err := conn.ReadJSON(&call); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]any{
			"type":   "result",
			"callId": call.ID,
			"error":  "no such tab",
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := srv.hub.GetByID(ctx, "missing")
	if err == nil || !strings.Contains(err.Error(), "no such tab") {
		t.Errorf("Expected browser error surfaced, got %v", err)
	}
}

func TestBridgeForwardsTabEvents(t *testing.T) {
	srv := NewServer(Config{}, &fakeEngine{}, NewHub())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialBridge(t, ts)
	<-srv.hub.Events()

	err := conn.WriteJSON(map[string]any{
		"type": "event",
		"kind": "created",
		"tab":  wireTab{ID: "t1", Title: "New tab", URL: "https://example.com"},
	})
	if err != nil {
		t.Fatalf("write event: %v", err)
	}

	select {
	case ev := <-srv.hub.Events():
		if ev.Kind != tabs.EventCreated || ev.ID != "t1" || ev.Tab.Title != "New tab" {
			t.Errorf("Unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Event not forwarded")
	}
}

func TestBridgeForwardsBookmarkEvents(t *testing.T) {
	srv := NewServer(Config{}, &fakeEngine{}, NewHub())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialBridge(t, ts)
	<-srv.hub.Events()

	err := conn.WriteJSON(map[string]any{
		"type":     "bookmark",
		"kind":     "created",
		"bookmark": wireBookmark{ID: "b1", Title: "GitHub", URL: "https://github.com"},
	})
	if err != nil {
		t.Fatalf("write event: %v", err)
	}

	select {
	case ev := <-srv.hub.Bookmarks().Events():
		if ev.Kind != tabs.BookmarkCreated || ev.ID != "b1" {
			t.Errorf("Unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Bookmark event not forwarded")
	}
}

func TestBridgeDisconnectFailsInFlightCalls(t *testing.T) {
	srv := NewServer(Config{}, &fakeEngine{}, NewHub())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialBridge(t, ts)
	<-srv.hub.Events()

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := srv.hub.EnumerateAll(ctx)
		errCh <- err
	}()

	// Drop the connection after the call frame arrives, leaving it pending.
	var call bridgeCall
	if err := conn.ReadJSON(&call); err != nil {
		t.Fatalf("read call: %v", err)
	}
	conn.Close()

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("Expected in-flight call to fail on disconnect")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Call did not fail after disconnect")
	}
}

func TestNewBridgeReplacesOld(t *testing.T) {
	srv := NewServer(Config{}, &fakeEngine{}, NewHub())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	dialBridge(t, ts)
	<-srv.hub.Events()

	dialBridge(t, ts)
	select {
	case ev := <-srv.hub.Events():
		if ev.Kind != tabs.EventAttached {
			t.Errorf("Expected second attach event, got %s", ev.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("No attach event for replacement bridge")
	}

	if !srv.hub.Connected() {
		t.Error("Replacement bridge should be connected")
	}
}
