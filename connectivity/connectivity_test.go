package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewMonitor_RequiresProbeURL(t *testing.T) {
	if _, err := NewMonitor(Config{}); err != ErrMissingProbeURL {
		t.Errorf("NewMonitor() error = %v, want ErrMissingProbeURL", err)
	}
}

func TestMonitor_StartsOnline(t *testing.T) {
	m, err := NewMonitor(Config{ProbeURL: "http://localhost/status"})
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}
	if !m.Online() {
		t.Error("monitor should start in the online state")
	}
}

func TestMonitor_SetOnlineNotifiesOnTransition(t *testing.T) {
	m, err := NewMonitor(Config{ProbeURL: "http://localhost/status"})
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	var got []bool
	m.Subscribe(func(online bool) { got = append(got, online) })

	m.SetOnline(false)
	m.SetOnline(false) // no transition, no notification
	m.SetOnline(true)

	want := []bool{false, true}
	if len(got) != len(want) {
		t.Fatalf("notifications = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMonitor_ProbeCountsAnyResponseAsOnline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m, err := NewMonitor(Config{ProbeURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	if !m.probe(context.Background()) {
		t.Error("probe() should report online when the server answers, even with 5xx")
	}
}

func TestMonitor_ProbeReportsOfflineOnTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // immediately unreachable

	m, err := NewMonitor(Config{ProbeURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	if m.probe(context.Background()) {
		t.Error("probe() should report offline when the transport fails")
	}
}

func TestMonitor_PeriodicProbeFlipsState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	m, err := NewMonitor(Config{ProbeURL: srv.URL, Interval: 10 * time.Millisecond, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	transitioned := make(chan bool, 1)
	m.Subscribe(func(online bool) {
		select {
		case transitioned <- online:
		default:
		}
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	select {
	case online := <-transitioned:
		if online {
			t.Error("expected transition to offline")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no transition observed")
	}
}

func TestMonitor_StartTwice(t *testing.T) {
	m, err := NewMonitor(Config{ProbeURL: "http://localhost/status", Interval: time.Hour})
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	if err := m.Start(context.Background()); err != ErrAlreadyStarted {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestStatic(t *testing.T) {
	if !Static(true).Online() {
		t.Error("Static(true).Online() = false")
	}
	if Static(false).Online() {
		t.Error("Static(false).Online() = true")
	}
}
