package orchestrator

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"emberlive/internal/journal"
	"emberlive/internal/models"
	"emberlive/internal/observability/metrics"
)

// DefaultMinApplicationID is the floor for allocated application IDs when the
// configuration does not override it. IDs below the floor are reserved for
// statically configured applications.
const DefaultMinApplicationID = 100

// StreamSink receives stream birth and death notifications, typically to
// publish them to a cluster-wide directory. Sink errors are logged, never
// propagated into stream handling.
type StreamSink interface {
	Announce(ctx context.Context, fullName string) error
	Withdraw(ctx context.Context, fullName string) error
}

// Config wires the orchestrator's collaborators. Every field is optional
// except nothing: a zero Config yields a fully functional coordinator that
// logs through slog.Default.
type Config struct {
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
	Journal  journal.Journal
	Streams  StreamSink
	MinAppID int64
}

// Orchestrator coordinates the registered modules, owns the virtual-host
// tree, and dispatches pull requests. Construct it with New; the zero value
// is not usable.
type Orchestrator struct {
	logger  *slog.Logger
	metrics *metrics.Recorder
	journal journal.Journal
	streams StreamSink

	lastAppID atomic.Int64

	modules registry

	// applyMu serializes reconciliation and application fan-out so module
	// callbacks observe deletions strictly before creations. Lookups and
	// name resolution never take it, which keeps re-entrant lookups from
	// module callbacks deadlock-free.
	applyMu sync.Mutex

	// mu guards the virtual-host tree. Critical sections never call into
	// modules.
	mu        sync.RWMutex
	vhostMap  map[string]*virtualHost
	vhostList []*virtualHost

	// pullMu guards the pending pull-owner table consulted when the media
	// router reports a new stream.
	pullMu  sync.Mutex
	pending map[string]pendingPull

	pulls singleflight.Group
}

// New constructs an orchestrator from the provided configuration.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	minID := cfg.MinAppID
	if minID <= 0 {
		minID = DefaultMinApplicationID
	}
	o := &Orchestrator{
		logger:   logger,
		metrics:  cfg.Metrics,
		journal:  cfg.Journal,
		streams:  cfg.Streams,
		vhostMap: make(map[string]*virtualHost),
		pending:  make(map[string]pendingPull),
	}
	o.lastAppID.Store(minID - 1)
	return o
}

// Register adds a module to the registry. It returns false when the module
// is already registered or reports an unknown kind.
func (o *Orchestrator) Register(m Module) bool {
	ok := o.modules.register(m)
	if ok {
		o.logger.Info("module registered", "kind", m.Kind().String())
		if o.metrics != nil {
			o.metrics.ModuleRegistered(m.Kind().String())
		}
	}
	return ok
}

// Unregister removes a module from the registry, reporting whether it was
// present.
func (o *Orchestrator) Unregister(m Module) bool {
	ok := o.modules.unregister(m)
	if ok {
		o.logger.Info("module unregistered", "kind", m.Kind().String())
		if o.metrics != nil {
			o.metrics.ModuleUnregistered(m.Kind().String())
		}
	}
	return ok
}

// ModuleCount returns the number of registered modules.
func (o *Orchestrator) ModuleCount() int {
	return o.modules.size()
}

// nextAppID allocates a fresh application ID. IDs are strictly increasing
// for the lifetime of the orchestrator.
func (o *Orchestrator) nextAppID() models.ApplicationID {
	return models.ApplicationID(o.lastAppID.Add(1))
}

func (o *Orchestrator) virtualHost(name string) (*virtualHost, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	vh, ok := o.vhostMap[name]
	return vh, ok
}

// GetApplication returns the application registered under the canonical
// "vhost#app" name.
func (o *Orchestrator) GetApplication(vhostApp string) (models.Application, bool) {
	vhostName, appName, err := ParseVHostAppName(vhostApp)
	if err != nil {
		return models.Application{}, false
	}

	o.mu.RLock()
	defer o.mu.RUnlock()

	vh, ok := o.vhostMap[vhostName]
	if !ok {
		return models.Application{}, false
	}
	app, ok := vh.appByName(appName)
	if !ok {
		return models.Application{}, false
	}
	return app.info, true
}

// VHostStatus is a point-in-time view of one virtual host, exposed to the
// admin API.
type VHostStatus struct {
	Name         string               `json:"name"`
	Domains      []string             `json:"domains"`
	Origins      []OriginStatus       `json:"origins"`
	Applications []models.Application `json:"applications"`
}

// OriginStatus reports an origin rule and the streams it currently owns.
type OriginStatus struct {
	Location string   `json:"location"`
	Scheme   string   `json:"scheme"`
	URLs     []string `json:"urls"`
	Streams  []string `json:"streams"`
}

// Status snapshots every virtual host in configuration order.
func (o *Orchestrator) Status() []VHostStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]VHostStatus, 0, len(o.vhostList))
	for _, vh := range o.vhostList {
		status := VHostStatus{Name: vh.name}
		for _, d := range vh.domains {
			status.Domains = append(status.Domains, d.name)
		}
		for _, origin := range vh.origins {
			os := OriginStatus{
				Location: origin.location,
				Scheme:   origin.scheme,
				URLs:     append([]string(nil), origin.urls...),
			}
			for _, s := range origin.streams {
				os.Streams = append(os.Streams, s.fullName)
			}
			sort.Strings(os.Streams)
			status.Origins = append(status.Origins, os)
		}
		apps := make([]models.Application, 0, len(vh.apps))
		for _, app := range vh.apps {
			apps = append(apps, app.info)
		}
		sort.Slice(apps, func(i, j int) bool { return apps[i].ID < apps[j].ID })
		status.Applications = apps
		out = append(out, status)
	}
	return out
}
