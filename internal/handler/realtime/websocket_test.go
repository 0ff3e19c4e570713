package realtime

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/anasify/dashboard/backend/internal/model/chat"
	"github.com/anasify/dashboard/backend/internal/model/chatbot"
	"github.com/anasify/dashboard/backend/internal/service/ai"
	"github.com/anasify/dashboard/backend/internal/service/ai/aitest"
	chatservice "github.com/anasify/dashboard/backend/internal/service/chat"
)

type frame struct {
	Type string     `json:"type"`
	Data chat.Event `json:"data"`
}

func dial(t *testing.T, m *aitest.Model, path string) *websocket.Conn {
	t.Helper()
	gen, err := ai.NewService(context.Background(), m, ai.Options{Streaming: true}, nil)
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}
	store := chatbot.NewMemoryStore(chatbot.Seed(time.Now().UTC()))
	svc := chatservice.NewService(gen, store, nil, chatservice.Options{MaxDuration: time.Second}, nil)

	r := chi.NewRouter()
	New(svc, nil).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello frame
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != "connected" {
		t.Fatalf("expected connected frame, got %+v (%v)", hello, err)
	}
	return conn
}

func readUntilTerminal(t *testing.T, conn *websocket.Conn) []frame {
	t.Helper()
	var frames []frame
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read err: %v", err)
		}
		frames = append(frames, f)
		if f.Type == chat.EventEnd || f.Type == chat.EventError {
			return frames
		}
	}
}

const chatFrame = `{"type":"chat","data":{"messages":[{"id":"u1","role":"user","content":"Hello"}]}}`

func TestWebSocketExchange(t *testing.T) {
	conn := dial(t, &aitest.Model{Chunks: []string{"Hi", "!"}}, "/chat/ws")

	for round := 0; round < 2; round++ {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(chatFrame)); err != nil {
			t.Fatalf("write err: %v", err)
		}

		frames := readUntilTerminal(t, conn)
		var types []string
		for _, f := range frames {
			types = append(types, f.Type)
		}
		if got := strings.Join(types, ","); got != "start,delta,delta,message,handoff,end" {
			t.Fatalf("round %d: unexpected frames %s", round, got)
		}
		if frames[3].Data.Content != "Hi!" {
			t.Fatalf("unexpected message content %q", frames[3].Data.Content)
		}
	}
}

func TestWebSocketRejectsBadPayloads(t *testing.T) {
	conn := dial(t, &aitest.Model{Chunks: []string{"x"}}, "/chatbots/ghost/chat/ws")

	conn.WriteMessage(websocket.TextMessage, []byte(chatFrame))
	frames := readUntilTerminal(t, conn)
	if len(frames) != 1 || frames[0].Data.Error != chatbot.ErrNotFound.Error() {
		t.Fatalf("expected not found error, got %+v", frames)
	}

	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"shout"}`))
	frames = readUntilTerminal(t, conn)
	if !strings.Contains(frames[0].Data.Error, "unsupported message type") {
		t.Fatalf("unexpected error frame %+v", frames[0])
	}
}

func TestWebSocketSurvivesMalformedFrames(t *testing.T) {
	conn := dial(t, &aitest.Model{Chunks: []string{"ok"}}, "/chat/ws")

	for _, bad := range []struct {
		kind int
		body string
	}{
		{websocket.TextMessage, `{"type":"chat",`},
		{websocket.BinaryMessage, `{"type":"ping"}`},
	} {
		if err := conn.WriteMessage(bad.kind, []byte(bad.body)); err != nil {
			t.Fatalf("write err: %v", err)
		}
		frames := readUntilTerminal(t, conn)
		if !strings.Contains(frames[0].Data.Error, "invalid frame") {
			t.Fatalf("expected invalid frame error for %q, got %+v", bad.body, frames[0])
		}
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(chatFrame)); err != nil {
		t.Fatalf("write err: %v", err)
	}
	frames := readUntilTerminal(t, conn)
	if last := frames[len(frames)-1]; last.Type != chat.EventEnd {
		t.Fatalf("expected exchange to complete after malformed frames, got %+v", last)
	}
}
