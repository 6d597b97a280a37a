package orchestrator

import (
	"context"
	"strings"

	"emberlive/internal/config"
	"emberlive/internal/journal"
	"emberlive/internal/models"
)

// CreateApplication creates an application inside the named virtual host and
// notifies every registered module, media routers first. If any module
// refuses, the modules that already created the application are rolled back
// in reverse order and no partial state is retained.
func (o *Orchestrator) CreateApplication(ctx context.Context, vhostName string, appCfg config.Application) (models.Application, Result) {
	o.applyMu.Lock()
	defer o.applyMu.Unlock()
	return o.createApplication(ctx, vhostName, appCfg)
}

// createApplication performs the fan-out. Callers hold applyMu.
func (o *Orchestrator) createApplication(ctx context.Context, vhostName string, appCfg config.Application) (models.Application, Result) {
	appName := strings.TrimSpace(appCfg.Name)
	if appName == "" {
		o.logger.Error("create application without a name", "vhost", vhostName)
		return models.Application{}, ResultFailed
	}

	o.mu.RLock()
	vh, ok := o.vhostMap[vhostName]
	if !ok {
		o.mu.RUnlock()
		o.logger.Error("create application for unknown virtual host", "vhost", vhostName, "app", appName)
		return models.Application{}, ResultFailed
	}
	if existing, found := vh.appByName(appName); found {
		o.mu.RUnlock()
		if o.metrics != nil {
			o.metrics.ApplicationEvent("exists")
		}
		return existing.info, ResultExists
	}
	o.mu.RUnlock()

	appInfo := models.Application{
		ID:     o.nextAppID(),
		Name:   ResolveApplicationName(vhostName, appName),
		VHost:  vhostName,
		App:    appName,
		Config: appCfg,
	}
	logger := o.logger.With("vhost_app", appInfo.Name, "app_id", int64(appInfo.ID))

	modules := o.modules.fanoutOrder()
	var created []Module
	for _, m := range modules {
		if err := m.OnCreateApplication(ctx, appInfo); err != nil {
			logger.Error("module rejected application", "kind", m.Kind().String(), "error", err)
			o.rollbackCreate(ctx, created, appInfo)
			return models.Application{}, ResultFailed
		}
		created = append(created, m)
	}

	// The observer goes in last so stream callbacks always see a fully
	// created application.
	observer := &appObserver{orch: o, app: appInfo}
	var observed []MediaRouter
	for _, router := range o.modules.mediaRouters() {
		if err := router.RegisterObserver(appInfo, observer); err != nil {
			logger.Error("observer registration failed", "error", err)
			for _, registered := range observed {
				if uerr := registered.UnregisterObserver(appInfo, observer); uerr != nil {
					logger.Warn("observer rollback failed", "error", uerr)
				}
			}
			o.rollbackCreate(ctx, created, appInfo)
			return models.Application{}, ResultFailed
		}
		observed = append(observed, router)
	}

	o.mu.Lock()
	vh.apps[appInfo.ID] = &application{
		info:     appInfo,
		observer: observer,
		streams:  make(map[models.StreamID]*stream),
	}
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.ApplicationEvent("created")
	}
	if o.journal != nil {
		if err := o.journal.Record(ctx, journal.Event{
			Kind:  journal.EventApplicationCreated,
			VHost: vhostName,
			App:   appInfo.Name,
		}); err != nil {
			logger.Warn("journal application create", "error", err)
		}
	}
	logger.Info("application created", "modules", len(created))
	return appInfo, ResultSucceeded
}

// rollbackCreate deletes a half-created application from every module that
// accepted it, in reverse order.
func (o *Orchestrator) rollbackCreate(ctx context.Context, created []Module, app models.Application) {
	for i := len(created) - 1; i >= 0; i-- {
		m := created[i]
		if err := m.OnDeleteApplication(ctx, app); err != nil {
			o.logger.Error("rollback delete failed", "vhost_app", app.Name, "kind", m.Kind().String(), "error", err)
		}
	}
	if o.metrics != nil {
		o.metrics.ApplicationEvent("rollback")
	}
	if o.journal != nil {
		if err := o.journal.Record(ctx, journal.Event{
			Kind:  journal.EventApplicationRollback,
			VHost: app.VHost,
			App:   app.Name,
		}); err != nil {
			o.logger.Warn("journal application rollback", "error", err)
		}
	}
}

// DeleteApplication deletes the application and notifies every module in
// reverse fan-out order (publishers first, media routers last). Module failures are logged and reported, but
// the application is never revived.
func (o *Orchestrator) DeleteApplication(ctx context.Context, app models.Application) Result {
	o.applyMu.Lock()
	defer o.applyMu.Unlock()
	return o.deleteApplication(ctx, app)
}

// deleteApplication performs the reverse fan-out. Callers hold applyMu.
func (o *Orchestrator) deleteApplication(ctx context.Context, app models.Application) Result {
	o.mu.Lock()
	vh, ok := o.vhostMap[app.VHost]
	if !ok {
		o.mu.Unlock()
		return ResultNotExists
	}
	entry, ok := vh.apps[app.ID]
	if !ok {
		o.mu.Unlock()
		return ResultNotExists
	}
	delete(vh.apps, app.ID)
	orphaned := make([]*stream, 0, len(entry.streams))
	for _, s := range entry.streams {
		orphaned = append(orphaned, s)
	}
	vh.removeStreamsOfApp(app.ID)
	o.mu.Unlock()

	logger := o.logger.With("vhost_app", app.Name, "app_id", int64(app.ID))
	for _, s := range orphaned {
		o.streamStopped(ctx, s)
	}

	for _, router := range o.modules.mediaRouters() {
		if err := router.UnregisterObserver(app, entry.observer); err != nil {
			logger.Warn("observer unregistration failed", "error", err)
		}
	}

	failed := false
	modules := o.modules.fanoutOrder()
	for i := len(modules) - 1; i >= 0; i-- {
		m := modules[i]
		if err := m.OnDeleteApplication(ctx, app); err != nil {
			logger.Error("module delete failed", "kind", m.Kind().String(), "error", err)
			failed = true
		}
	}

	if o.metrics != nil {
		o.metrics.ApplicationEvent("deleted")
	}
	if o.journal != nil {
		if err := o.journal.Record(ctx, journal.Event{
			Kind:  journal.EventApplicationDeleted,
			VHost: app.VHost,
			App:   app.Name,
		}); err != nil {
			logger.Warn("journal application delete", "error", err)
		}
	}
	logger.Info("application deleted", "failed", failed)
	if failed {
		return ResultFailed
	}
	return ResultSucceeded
}

// removeStreamsOfApp strips every stream owned by the application from the
// rule maps. Callers hold o.mu.
func (vh *virtualHost) removeStreamsOfApp(appID models.ApplicationID) {
	for _, rule := range vh.domains {
		for id, s := range rule.streams {
			if s.app.ID == appID {
				delete(rule.streams, id)
			}
		}
	}
	for _, rule := range vh.origins {
		for id, s := range rule.streams {
			if s.app.ID == appID {
				delete(rule.streams, id)
			}
		}
	}
}
