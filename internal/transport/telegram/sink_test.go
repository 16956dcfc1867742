package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"dankbot/internal/notify"
	"dankbot/internal/room"
	logx "dankbot/pkg/logx"
)

func TestSplitText(t *testing.T) {
	t.Parallel()
	if got := splitText("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("got %q", got)
	}
	long := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	got := splitText(long, 10)
	if len(got) != 2 || got[0] != strings.Repeat("a", 8) || got[1] != strings.Repeat("b", 8) {
		t.Fatalf("got %q", got)
	}
	for _, c := range splitText(strings.Repeat("x", 25), 10) {
		if len(c) > 10 {
			t.Fatalf("chunk too long: %d", len(c))
		}
	}
}

func TestSinkSendsToRoomChat(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var chats, texts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			http.Error(w, "unexpected "+r.URL.Path, http.StatusNotFound)
			return
		}
		body, _ := io.ReadAll(r.Body)
		params := map[string]any{}
		if err := json.Unmarshal(body, &params); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		chats = append(chats, fmt.Sprint(params["chat_id"]))
		texts = append(texts, fmt.Sprint(params["text"]))
		mu.Unlock()
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1,"chat":{"id":-100}}}`)
	}))
	defer srv.Close()

	s, err := New(Config{Token: "123:abc", URL: srv.URL, Offline: true}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ts, _ := room.NewTimeSlot(4, 20, []string{"blaze"}, 5)
	if err := s.Send(context.Background(), notify.Notification{RoomID: -100, Kind: notify.KindDankTime, Slot: ts}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(chats) != 1 || chats[0] != "-100" || !strings.Contains(texts[0], "04:20") {
		t.Fatalf("chats=%v texts=%v", chats, texts)
	}
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Offline: true}, logx.Nop()); err == nil {
		t.Fatal("empty token accepted")
	}
}

func TestSinkRequestTimeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	s, err := New(Config{Token: "123:abc", URL: srv.URL, Offline: true, RequestTimeout: 50 * time.Millisecond}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	err = s.Send(context.Background(), notify.Notification{RoomID: -100, Kind: notify.KindLeaderboard})
	if err == nil {
		t.Fatal("Send should time out")
	}
	if took := time.Since(start); took > 2*time.Second {
		t.Fatalf("Send took %s", took)
	}
}
