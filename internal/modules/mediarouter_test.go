package modules

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"emberlive/internal/models"
	"emberlive/internal/orchestrator"
)

type capturedObserver struct {
	mu      sync.Mutex
	created []models.Stream
	deleted []models.Stream
}

func (o *capturedObserver) OnCreateStream(s models.Stream) error {
	o.mu.Lock()
	o.created = append(o.created, s)
	o.mu.Unlock()
	return nil
}

func (o *capturedObserver) OnDeleteStream(s models.Stream) error {
	o.mu.Lock()
	o.deleted = append(o.deleted, s)
	o.mu.Unlock()
	return nil
}

func (o *capturedObserver) OnSendFrame(models.Stream, models.Packet) error {
	return nil
}

type requestLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *requestLog) add(entry string) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

func (l *requestLog) first() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return ""
	}
	return l.entries[0]
}

func (l *requestLog) last() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return ""
	}
	return l.entries[len(l.entries)-1]
}

func startRouterDaemon(t *testing.T) (*httptest.Server, *requestLog) {
	t.Helper()
	log := &requestLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.add(r.Method + " " + r.URL.EscapedPath())
		if r.Method == http.MethodPost {
			var payload observerPayload
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Errorf("decode observer payload: %v", err)
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, log
}

func TestRemoteMediaRouterKind(t *testing.T) {
	srv, _ := startRouterDaemon(t)
	router, err := NewRemoteMediaRouter(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("NewRemoteMediaRouter: %v", err)
	}
	if router.Kind() != orchestrator.KindMediaRouter {
		t.Fatalf("kind = %s", router.Kind())
	}
}

func TestRemoteMediaRouterObserverLifecycle(t *testing.T) {
	srv, requests := startRouterDaemon(t)
	router, err := NewRemoteMediaRouter(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("NewRemoteMediaRouter: %v", err)
	}

	observer := &capturedObserver{}
	app := testApp()
	if err := router.RegisterObserver(app, observer); err != nil {
		t.Fatalf("RegisterObserver: %v", err)
	}
	if got := requests.first(); got != "POST /v1/observers" {
		t.Fatalf("unexpected subscription request %q", got)
	}

	info := models.Stream{ID: 7, Name: "stream1"}
	if err := router.ReportStreamCreated(app.Name, info); err != nil {
		t.Fatalf("ReportStreamCreated: %v", err)
	}
	if len(observer.created) != 1 || observer.created[0].Name != "stream1" {
		t.Fatalf("observer did not receive the stream: %+v", observer.created)
	}

	if err := router.ReportStreamDeleted(app.Name, info); err != nil {
		t.Fatalf("ReportStreamDeleted: %v", err)
	}
	if len(observer.deleted) != 1 {
		t.Fatalf("observer did not receive the deletion: %+v", observer.deleted)
	}

	if err := router.UnregisterObserver(app, observer); err != nil {
		t.Fatalf("UnregisterObserver: %v", err)
	}
	if got := requests.last(); got != "DELETE /v1/observers/h1%23live" {
		t.Fatalf("unexpected unsubscription request %q", got)
	}
	if err := router.ReportStreamCreated(app.Name, info); err == nil {
		t.Fatal("reports after unregistration must be rejected")
	}
}

func TestRemoteMediaRouterUnknownApplication(t *testing.T) {
	srv, _ := startRouterDaemon(t)
	router, err := NewRemoteMediaRouter(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("NewRemoteMediaRouter: %v", err)
	}
	if err := router.ReportStreamCreated("ghost#app", models.Stream{ID: 1, Name: "s"}); err == nil {
		t.Fatal("expected unknown application to be rejected")
	}
}

func TestRemoteMediaRouterRejectsNilObserver(t *testing.T) {
	srv, _ := startRouterDaemon(t)
	router, err := NewRemoteMediaRouter(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("NewRemoteMediaRouter: %v", err)
	}
	if err := router.RegisterObserver(testApp(), nil); err == nil {
		t.Fatal("expected nil observer to be rejected")
	}
}

func TestRemoteMediaRouterSubscriptionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	router, err := NewRemoteMediaRouter(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("NewRemoteMediaRouter: %v", err)
	}
	if err := router.RegisterObserver(testApp(), &capturedObserver{}); err == nil {
		t.Fatal("expected subscription failure to surface")
	}
	// A failed subscription must not leave a routable observer behind.
	if err := router.ReportStreamCreated(testApp().Name, models.Stream{ID: 1, Name: "s"}); err == nil {
		t.Fatal("expected no observer after failed subscription")
	}
}
