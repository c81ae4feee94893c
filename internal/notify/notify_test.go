package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/example/ride-negotiation/internal/apperr"
	"github.com/example/ride-negotiation/internal/logging"
	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/storage"
)

type recordingPusher struct {
	mu   sync.Mutex
	got  []models.Notification
	fail bool
}

func (r *recordingPusher) Name() string { return "recording" }

func (r *recordingPusher) Push(ctx context.Context, n models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	if r.fail {
		return errors.New("push failed")
	}
	return nil
}

func TestNotifyPersistsAndPushes(t *testing.T) {
	store := storage.NewMemoryStore()
	ok := &recordingPusher{}
	broken := &recordingPusher{fail: true}
	d := NewDispatcher(store, logging.Discard(), ok, broken)
	user := uuid.New()

	n, err := d.Notify(context.Background(), models.Notification{UserID: user, Type: models.NotifyOffer, Title: "New offer", Message: "20.00"})
	if err != nil {
		t.Fatalf("push failures must not fail notify: %v", err)
	}
	d.Wait()
	if n.ID == uuid.Nil {
		t.Fatal("expected id to be assigned")
	}
	if len(ok.got) != 1 || len(broken.got) != 1 {
		t.Fatalf("expected one push per channel, got %d/%d", len(ok.got), len(broken.got))
	}
	list, _ := d.List(context.Background(), user, true, 0)
	if len(list) != 1 || list[0].ID != n.ID {
		t.Fatalf("expected stored notification, got %+v", list)
	}
}

func TestMarkRead(t *testing.T) {
	store := storage.NewMemoryStore()
	d := NewDispatcher(store, nil)
	ctx := context.Background()
	user := uuid.New()
	n, _ := d.Notify(ctx, models.Notification{UserID: user, Type: models.NotifyRide, Title: "t", Message: "m"})

	if err := d.MarkRead(ctx, uuid.New(), n.ID); apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("other users cannot mark it, got %v", err)
	}
	if err := d.MarkRead(ctx, user, n.ID); err != nil {
		t.Fatal(err)
	}
	unread, _ := d.List(ctx, user, true, 10)
	all, _ := d.List(ctx, user, false, 10)
	if len(unread) != 0 || len(all) != 1 || !all[0].Read {
		t.Fatalf("unread=%d all=%+v", len(unread), all)
	}
}

func TestFCMPusher(t *testing.T) {
	var body map[string]map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	user := uuid.New()
	p := NewFCMPusher(srv.URL, "server-key")
	if err := p.Push(context.Background(), models.Notification{ID: uuid.New(), UserID: user, Type: models.NotifyRide, Title: "t", Message: "m"}); err != nil {
		t.Fatal(err)
	}
	if auth != "Bearer server-key" {
		t.Fatalf("auth header %q", auth)
	}
	if body["message"]["topic"] != "user-"+user.String() {
		t.Fatalf("topic %v", body["message"]["topic"])
	}
}

func TestFCMPusherNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	if err := NewFCMPusher(srv.URL, "").Push(context.Background(), models.Notification{UserID: uuid.New()}); err == nil {
		t.Fatal("expected error")
	}
}

func TestWSRegistryPush(t *testing.T) {
	reg := NewWSRegistry()
	user := uuid.New()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		reg.Serve(user.String(), conn)
	}))
	defer srv.Close()

	if err := reg.Push(context.Background(), models.Notification{UserID: user}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected no session, got %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for !reg.Connected(user.String()) {
		if time.Now().After(deadline) {
			t.Fatal("session never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	want := models.Notification{ID: uuid.New(), UserID: user, Title: "Ride accepted"}
	if err := reg.Push(context.Background(), want); err != nil {
		t.Fatal(err)
	}
	var got models.Notification
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID != want.ID || got.Title != want.Title {
		t.Fatalf("got %+v", got)
	}
}
