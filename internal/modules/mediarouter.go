package modules

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"emberlive/internal/models"
	"emberlive/internal/orchestrator"
)

// RemoteMediaRouter drives a media-router daemon over its REST control API
// and routes the daemon's stream reports back into the orchestrator's
// per-application observers.
//
// Outbound calls mirror the other remote modules: the application lifecycle
// goes to /v1/applications and observer subscriptions to /v1/observers.
// Inbound reports arrive on the admin API's stream endpoint, which
// dispatches them here; the router resolves the application to the observer
// it registered and forwards the callback.
type RemoteMediaRouter struct {
	RemoteModule

	mu        sync.Mutex
	observers map[string]orchestrator.StreamObserver
}

type observerPayload struct {
	Application applicationPayload `json:"application"`
}

// NewRemoteMediaRouter constructs an HTTP-backed media router.
func NewRemoteMediaRouter(cfg RemoteConfig) (*RemoteMediaRouter, error) {
	base, err := NewRemoteModule(orchestrator.KindMediaRouter, cfg)
	if err != nil {
		return nil, err
	}
	return &RemoteMediaRouter{
		RemoteModule: *base,
		observers:    make(map[string]orchestrator.StreamObserver),
	}, nil
}

// RegisterObserver subscribes the daemon to the application's streams and
// records the observer so inbound reports can be routed to it.
func (r *RemoteMediaRouter) RegisterObserver(app models.Application, observer orchestrator.StreamObserver) error {
	if observer == nil {
		return fmt.Errorf("observer is required")
	}
	if err := r.postJSON(context.Background(), r.baseURL+"/v1/observers", observerPayload{Application: appPayload(app)}, nil); err != nil {
		return fmt.Errorf("subscribe %s: %w", app.Name, err)
	}
	r.mu.Lock()
	r.observers[app.Name] = observer
	r.mu.Unlock()
	return nil
}

// UnregisterObserver drops the local observer and cancels the daemon-side
// subscription.
func (r *RemoteMediaRouter) UnregisterObserver(app models.Application, _ orchestrator.StreamObserver) error {
	r.mu.Lock()
	delete(r.observers, app.Name)
	r.mu.Unlock()
	if err := r.delete(context.Background(), r.baseURL+"/v1/observers/"+url.PathEscape(app.Name)); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", app.Name, err)
	}
	return nil
}

func (r *RemoteMediaRouter) observer(appName string) (orchestrator.StreamObserver, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	observer, ok := r.observers[appName]
	return observer, ok
}

// ReportStreamCreated forwards a stream birth reported by the daemon to the
// observer registered for the application.
func (r *RemoteMediaRouter) ReportStreamCreated(appName string, stream models.Stream) error {
	observer, ok := r.observer(appName)
	if !ok {
		return fmt.Errorf("no observer for application %q", appName)
	}
	return observer.OnCreateStream(stream)
}

// ReportStreamDeleted forwards a stream death reported by the daemon.
func (r *RemoteMediaRouter) ReportStreamDeleted(appName string, stream models.Stream) error {
	observer, ok := r.observer(appName)
	if !ok {
		return fmt.Errorf("no observer for application %q", appName)
	}
	return observer.OnDeleteStream(stream)
}
