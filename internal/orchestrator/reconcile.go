package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"emberlive/internal/config"
	"emberlive/internal/journal"
	"emberlive/internal/models"
)

// ApplyOriginMap reconciles the live virtual-host tree against a desired
// snapshot. The diff marks every live item, matches domains by name and
// origins by location, and then applies deletions strictly before creations
// so a renamed origin never collides with its predecessor. A failure on one
// virtual host does not abort reconciliation of the others; the combined
// error is returned.
func (o *Orchestrator) ApplyOriginMap(ctx context.Context, hosts []config.Host) error {
	o.applyMu.Lock()
	defer o.applyMu.Unlock()

	o.mu.Lock()
	for _, vh := range o.vhostList {
		vh.markAll(stateNeedToCheck)
	}
	for _, host := range hosts {
		vh, ok := o.vhostMap[host.Name]
		if !ok {
			vh = newVirtualHost(host)
			o.vhostMap[host.Name] = vh
			o.vhostList = append(o.vhostList, vh)
			continue
		}
		vh.host = host
		vh.state = stateNotChanged
		vh.state = strongerState(vh.state, processDomainList(vh, host.Domains))
		vh.state = strongerState(vh.state, processOriginList(vh, host.Origins))
	}
	for _, vh := range o.vhostList {
		if vh.state == stateNeedToCheck {
			vh.markAll(stateDelete)
		}
	}
	vhosts := append([]*virtualHost(nil), o.vhostList...)
	o.mu.Unlock()

	var errs []error
	for _, vh := range vhosts {
		if err := o.applyForVirtualHost(ctx, vh); err != nil {
			errs = append(errs, fmt.Errorf("virtual host %q: %w", vh.name, err))
		}
	}

	o.settle()

	err := errors.Join(errs...)
	outcome := "applied"
	if err != nil {
		outcome = "failed"
	}
	if o.metrics != nil {
		o.metrics.ObserveReconcile(outcome)
	}
	if o.journal != nil {
		if jerr := o.journal.Record(ctx, journal.Event{Kind: journal.EventReconcileApplied, Detail: outcome}); jerr != nil {
			o.logger.Warn("journal reconcile event", "error", jerr)
		}
	}
	o.logger.Info("origin map applied", "hosts", len(hosts), "outcome", outcome)
	return err
}

// processDomainList diffs the configured domain names against the live
// rules. Matched rules settle to notChanged (a domain has no mutable fields
// beyond its pattern), new names append as new rules, and live rules absent
// from the configuration are marked for deletion. The return value is the
// strongest state produced.
func processDomainList(vh *virtualHost, names []string) itemState {
	agg := stateNotChanged
	for _, name := range names {
		matched := false
		for _, rule := range vh.domains {
			if rule.name == name && rule.state == stateNeedToCheck {
				rule.state = stateNotChanged
				matched = true
				break
			}
		}
		if !matched {
			vh.domains = append(vh.domains, newDomainRule(name))
			agg = strongerState(agg, stateNew)
		}
	}
	for _, rule := range vh.domains {
		if rule.state == stateNeedToCheck {
			rule.state = stateDelete
			agg = strongerState(agg, stateDelete)
		}
	}
	return agg
}

// processOriginList diffs the configured origins against the live rules,
// matching by location. A matched origin whose scheme or ordered URL list
// differs is marked changed; its application is replaced during apply.
func processOriginList(vh *virtualHost, origins []config.Origin) itemState {
	agg := stateNotChanged
	for _, cfg := range origins {
		matched := false
		for _, rule := range vh.origins {
			if rule.location != cfg.Location || rule.state != stateNeedToCheck {
				continue
			}
			matched = true
			if rule.sameUpstream(cfg) {
				rule.state = stateNotChanged
			} else {
				rule.state = stateChanged
				rule.scheme = cfg.Pass.Scheme
				rule.urls = append([]string(nil), cfg.Pass.URLs...)
				rule.cfg = cfg
				agg = strongerState(agg, stateChanged)
			}
			break
		}
		if !matched {
			vh.origins = append(vh.origins, newOriginRule(cfg))
			agg = strongerState(agg, stateNew)
		}
	}
	for _, rule := range vh.origins {
		if rule.state == stateNeedToCheck {
			rule.state = stateDelete
			agg = strongerState(agg, stateDelete)
		}
	}
	return agg
}

// applyForVirtualHost executes the diff for one virtual host: applications
// behind deleted or changed origins are deleted first, then new and changed
// origins create theirs.
func (o *Orchestrator) applyForVirtualHost(ctx context.Context, vh *virtualHost) error {
	if vh.state == stateDelete {
		return o.deleteAllApplications(ctx, vh)
	}

	o.mu.RLock()
	var deletions []models.ApplicationID
	for _, origin := range vh.origins {
		if origin.state != stateDelete && origin.state != stateChanged {
			continue
		}
		if origin.appID == 0 || originShared(vh, origin) {
			continue
		}
		deletions = append(deletions, origin.appID)
	}
	creations := make([]*originRule, 0)
	for _, origin := range vh.origins {
		if origin.state == stateNew || origin.state == stateChanged {
			creations = append(creations, origin)
		}
	}
	o.mu.RUnlock()

	var errs []error
	for _, appID := range deletions {
		if app, ok := o.applicationByID(vh, appID); ok {
			if result := o.deleteApplication(ctx, app); result == ResultFailed {
				errs = append(errs, fmt.Errorf("delete application %s: %s", app.Name, result))
			}
		}
	}
	for _, origin := range creations {
		appCfg := origin.cfg.Application
		appCfg.Name = origin.cfg.AppName()
		app, result := o.createApplication(ctx, vh.name, appCfg)
		switch result {
		case ResultSucceeded, ResultExists:
			o.mu.Lock()
			origin.appID = app.ID
			o.mu.Unlock()
		default:
			errs = append(errs, fmt.Errorf("create application %q for origin %q: %s", appCfg.Name, origin.location, result))
		}
	}
	return errors.Join(errs...)
}

// originShared reports whether another surviving origin references the same
// application, in which case the application outlives this rule.
func originShared(vh *virtualHost, origin *originRule) bool {
	for _, other := range vh.origins {
		if other == origin || other.appID != origin.appID {
			continue
		}
		if other.state != stateDelete && other.state != stateChanged {
			return true
		}
	}
	return false
}

func (o *Orchestrator) applicationByID(vh *virtualHost, id models.ApplicationID) (models.Application, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	app, ok := vh.apps[id]
	if !ok {
		return models.Application{}, false
	}
	return app.info, true
}

func (o *Orchestrator) deleteAllApplications(ctx context.Context, vh *virtualHost) error {
	o.mu.RLock()
	apps := make([]models.Application, 0, len(vh.apps))
	for _, app := range vh.apps {
		apps = append(apps, app.info)
	}
	o.mu.RUnlock()

	var errs []error
	for _, app := range apps {
		if result := o.deleteApplication(ctx, app); result == ResultFailed {
			errs = append(errs, fmt.Errorf("delete application %s: %s", app.Name, result))
		}
	}
	return errors.Join(errs...)
}

// settle prunes deleted items, reorders survivors into the latest
// configuration order, and returns them to the applied state. After settle
// no item carries a transient diff state.
func (o *Orchestrator) settle() {
	o.mu.Lock()
	defer o.mu.Unlock()

	survivors := o.vhostList[:0]
	for _, vh := range o.vhostList {
		if vh.state == stateDelete {
			delete(o.vhostMap, vh.name)
			continue
		}
		vh.settleRules()
		survivors = append(survivors, vh)
	}
	o.vhostList = survivors
}

func (vh *virtualHost) settleRules() {
	domainsByName := make(map[string]*domainRule, len(vh.domains))
	for _, rule := range vh.domains {
		if rule.state != stateDelete {
			domainsByName[rule.name] = rule
		}
	}
	domains := make([]*domainRule, 0, len(vh.host.Domains))
	for _, name := range vh.host.Domains {
		if rule, ok := domainsByName[name]; ok {
			rule.state = stateApplied
			domains = append(domains, rule)
			delete(domainsByName, name)
		}
	}
	vh.domains = domains

	originsByLocation := make(map[string]*originRule, len(vh.origins))
	for _, rule := range vh.origins {
		if rule.state != stateDelete {
			originsByLocation[rule.location] = rule
		}
	}
	origins := make([]*originRule, 0, len(vh.host.Origins))
	for _, cfg := range vh.host.Origins {
		if rule, ok := originsByLocation[cfg.Location]; ok {
			rule.state = stateApplied
			origins = append(origins, rule)
			delete(originsByLocation, cfg.Location)
		}
	}
	vh.origins = origins

	vh.state = stateApplied
}
