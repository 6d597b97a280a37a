package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"emberlive/internal/models"
)

// callLog records module callbacks in order so tests can assert fan-out
// ordering across modules.
type callLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *callLog) add(entry string) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

func (l *callLog) reset() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

func (l *callLog) count(prefix string) int {
	n := 0
	for _, entry := range l.snapshot() {
		if len(entry) >= len(prefix) && entry[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

type fakeModule struct {
	kind       ModuleKind
	name       string
	log        *callLog
	failCreate bool
	failDelete bool
}

func (m *fakeModule) Kind() ModuleKind {
	return m.kind
}

func (m *fakeModule) OnCreateApplication(_ context.Context, app models.Application) error {
	m.log.add(fmt.Sprintf("create:%s:%s", m.name, app.Name))
	if m.failCreate {
		return errors.New("create refused")
	}
	return nil
}

func (m *fakeModule) OnDeleteApplication(_ context.Context, app models.Application) error {
	m.log.add(fmt.Sprintf("delete:%s:%s", m.name, app.Name))
	if m.failDelete {
		return errors.New("delete refused")
	}
	return nil
}

// fakeRouter tracks observers per application and lets tests report stream
// births the way the real routing fabric would.
type fakeRouter struct {
	fakeModule

	mu        sync.Mutex
	observers map[string]StreamObserver
	nextID    models.StreamID
}

func newFakeRouter(name string, log *callLog) *fakeRouter {
	return &fakeRouter{
		fakeModule: fakeModule{kind: KindMediaRouter, name: name, log: log},
		observers:  make(map[string]StreamObserver),
	}
}

func (r *fakeRouter) RegisterObserver(app models.Application, observer StreamObserver) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers[app.Name] = observer
	return nil
}

func (r *fakeRouter) UnregisterObserver(app models.Application, _ StreamObserver) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.observers, app.Name)
	return nil
}

// publishStream simulates a provider producing a stream: the router assigns
// an ID and notifies the application's observer.
func (r *fakeRouter) publishStream(appName, streamName string) (models.Stream, error) {
	r.mu.Lock()
	observer, ok := r.observers[appName]
	r.nextID++
	info := models.Stream{ID: r.nextID, Name: streamName}
	r.mu.Unlock()
	if !ok {
		return models.Stream{}, fmt.Errorf("no observer for %s", appName)
	}
	return info, observer.OnCreateStream(info)
}

func (r *fakeRouter) dropStream(appName string, info models.Stream) error {
	r.mu.Lock()
	observer, ok := r.observers[appName]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("no observer for %s", appName)
	}
	return observer.OnDeleteStream(info)
}

type pullCall struct {
	app    models.Application
	stream string
	url    string
	offset int64
}

// fakeProvider records pull requests and optionally reports the stream
// through the router like a live ingress would.
type fakeProvider struct {
	fakeModule

	providerType ProviderType
	failPull     bool
	router       *fakeRouter

	mu    sync.Mutex
	pulls []pullCall
}

func newFakeProvider(name string, providerType ProviderType, log *callLog) *fakeProvider {
	return &fakeProvider{
		fakeModule:   fakeModule{kind: KindProvider, name: name, log: log},
		providerType: providerType,
	}
}

func (p *fakeProvider) ProviderType() ProviderType {
	return p.providerType
}

func (p *fakeProvider) PullStream(_ context.Context, app models.Application, stream, url string, offset int64) error {
	p.mu.Lock()
	p.pulls = append(p.pulls, pullCall{app: app, stream: stream, url: url, offset: offset})
	p.mu.Unlock()
	if p.failPull {
		return errors.New("pull refused")
	}
	if p.router != nil {
		if _, err := p.router.publishStream(app.Name, stream); err != nil {
			return err
		}
	}
	return nil
}

func (p *fakeProvider) pullCalls() []pullCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pullCall(nil), p.pulls...)
}
