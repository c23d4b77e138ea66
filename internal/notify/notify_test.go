package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/pkg/arenadto"
	"github.com/redis/go-redis/v9"
)

type recorder struct {
	mu  sync.Mutex
	got []arenadto.Event
	err error
}

func (r *recorder) Notify(_ context.Context, ev arenadto.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, ev)
	return r.err
}

func TestDispatcherRendersAndFansOut(t *testing.T) {
	cat, err := msgcat.New("en", "")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	a, b := &recorder{}, &recorder{}
	d := NewDispatcher(cat, a, b)
	ev := arenadto.Event{Kind: arenadto.EventDrawOffered, Recipient: "u2", OpponentID: "u1", SessionID: "g1"}
	if err := d.Notify(context.Background(), ev); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	for _, r := range []*recorder{a, b} {
		if len(r.got) != 1 {
			t.Fatalf("sink got %d events", len(r.got))
		}
		if r.got[0].Text != "u1 offers a draw in game g1." || r.got[0].At.IsZero() {
			t.Fatalf("event=%+v", r.got[0])
		}
	}
}

func TestDispatcherReturnsSinkError(t *testing.T) {
	boom := errors.New("boom")
	ok, bad := &recorder{}, &recorder{err: boom}
	d := NewDispatcher(nil, ok, bad)
	err := d.Notify(context.Background(), arenadto.Event{Kind: arenadto.EventGameEnded, Recipient: "u1"})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if len(ok.got) != 1 {
		t.Fatalf("healthy sink skipped")
	}
}

func TestSendSkipsEmptyRecipient(t *testing.T) {
	r := &recorder{}
	Send(context.Background(), r,
		arenadto.Event{Kind: arenadto.EventGameStarted},
		arenadto.Event{Kind: arenadto.EventGameStarted, Recipient: "u1"},
	)
	if len(r.got) != 1 {
		t.Fatalf("got %d", len(r.got))
	}
	Send(context.Background(), nil, arenadto.Event{Recipient: "x"})
}

func TestRedisPublisher(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, Channel("u1"))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	p := NewRedisPublisher(rdb)
	if err := p.Notify(ctx, arenadto.Event{Kind: arenadto.EventMatchFound, Recipient: "u1", SessionID: "g9"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	select {
	case msg := <-sub.Channel():
		var ev arenadto.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.Kind != arenadto.EventMatchFound || ev.SessionID != "g9" {
			t.Fatalf("event=%+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no message published")
	}
}

func TestWebhookPostsJSON(t *testing.T) {
	type seen struct {
		ev   arenadto.Event
		auth string
	}
	ch := make(chan seen, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var s seen
		s.auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &s.ev)
		ch <- s
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithBearerToken("secret"))
	if err := w.Notify(context.Background(), arenadto.Event{Kind: arenadto.EventGameEnded, Recipient: "u1", Result: "draw"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	got := <-ch
	if got.ev.Kind != arenadto.EventGameEnded || got.ev.Result != "draw" {
		t.Fatalf("server got %+v", got.ev)
	}
	if got.auth != "Bearer secret" {
		t.Fatalf("auth=%q", got.auth)
	}
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithRetry(3))
	if err := w.Notify(context.Background(), arenadto.Event{Kind: arenadto.EventGameStarted, Recipient: "u1"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls=%d", calls.Load())
	}
}

func TestWebhookDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithRetry(3))
	if err := w.Notify(context.Background(), arenadto.Event{Kind: arenadto.EventGameStarted, Recipient: "u1"}); err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls=%d", calls.Load())
	}
}
