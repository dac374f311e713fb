package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestManagedServerServesAndShutsDown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	m := NewManagedServer("test", DefaultServerConfig("127.0.0.1:0", handler, zap.NewNop()))
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get("http://" + m.Addr() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "OK" {
		t.Errorf("body = %q", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.Shutdown(ctx)

	select {
	case err, ok := <-m.Err():
		if ok && err != nil {
			t.Errorf("unexpected serve error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Err channel not closed after shutdown")
	}
}

func TestManagedServerReportsBindFailure(t *testing.T) {
	first := NewManagedServer("first", DefaultServerConfig("127.0.0.1:0", http.NotFoundHandler(), zap.NewNop()))
	if err := first.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.Shutdown(context.Background())

	second := NewManagedServer("second", DefaultServerConfig(first.Addr(), http.NotFoundHandler(), zap.NewNop()))
	if err := second.Start(); err == nil {
		t.Fatal("expected bind failure on a used port")
	}
	second.Shutdown(context.Background())
}

func TestGroupStartRollsBackOnBindFailure(t *testing.T) {
	busy := NewManagedServer("busy", DefaultServerConfig("127.0.0.1:0", http.NotFoundHandler(), zap.NewNop()))
	if err := busy.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer busy.Shutdown(context.Background())

	ok := NewManagedServer("ok", DefaultServerConfig("127.0.0.1:0", http.NotFoundHandler(), zap.NewNop()))
	clash := NewManagedServer("clash", DefaultServerConfig(busy.Addr(), http.NotFoundHandler(), zap.NewNop()))

	var g Group
	g.Add(ok)
	g.Add(clash)
	if err := g.Start(context.Background()); err == nil {
		t.Fatal("expected bind failure")
	}

	select {
	case <-ok.Err():
	case <-time.After(5 * time.Second):
		t.Fatal("already-started server was not shut down")
	}
}

func TestGroupWaitReturnsOnContextDone(t *testing.T) {
	var g Group
	g.Add(NewManagedServer("a", DefaultServerConfig("127.0.0.1:0", http.NotFoundHandler(), zap.NewNop())))
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer g.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := g.Wait(ctx); err != nil {
		t.Errorf("Wait = %v, want nil", err)
	}
}
