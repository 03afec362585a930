package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func dialWS(t *testing.T, mux *http.ServeMux) (*websocket.Conn, func()) {
	t.Helper()

	srv := httptest.NewServer(mux)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/transcribe"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("Failed to dial websocket: %v", err)
	}

	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func TestWebSocketTranscribe(t *testing.T) {
	provider := &stubProvider{text: "segment"}
	mux := testMux(t, provider)

	conn, cleanup := dialWS(t, mux)
	defer cleanup()

	if err := conn.WriteJSON(wsRequest{Model: "OpenAI Whisper", ChunkDuration: 2}); err != nil {
		t.Fatalf("Failed to send request message: %v", err)
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, sineWAV(t, 5)); err != nil {
		t.Fatalf("Failed to send audio message: %v", err)
	}

	var chunks int
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("Failed to read message after %d chunks: %v", chunks, err)
		}

		switch msg.Type {
		case "chunk":
			if msg.Index != chunks {
				t.Errorf("Expected chunk index %d, got %d", chunks, msg.Index)
			}
			chunks++

		case "done":
			if chunks != 3 {
				t.Errorf("Expected 3 chunk messages, got %d", chunks)
			}
			if msg.Text != "segment segment segment" {
				t.Errorf("Expected joined text, got %q", msg.Text)
			}
			return

		case "error":
			t.Fatalf("Unexpected error message: %s", msg.Error)
		}
	}
}

func TestWebSocketUnknownModel(t *testing.T) {
	provider := &stubProvider{}
	mux := testMux(t, provider)

	conn, cleanup := dialWS(t, mux)
	defer cleanup()

	if err := conn.WriteJSON(wsRequest{Model: "Nope"}); err != nil {
		t.Fatalf("Failed to send request message: %v", err)
	}

	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}

	if msg.Type != "error" || !strings.Contains(msg.Error, "unknown model") {
		t.Errorf("Expected unknown model error, got %+v", msg)
	}

	if provider.calls != 0 {
		t.Errorf("Expected 0 provider calls, got %d", provider.calls)
	}
}
