package orchestrator

import (
	"context"
	"fmt"
	"net/url"
)

// pendingPull remembers which rule and provider caused an outstanding pull
// so the stream reported by the media router can be attributed to them.
type pendingPull struct {
	origin   *originRule
	domain   *domainRule
	provider Provider
}

// RequestPullStreamWithURL pulls a stream from an explicit URL, bypassing
// origin-rule resolution. Used for ad-hoc pulls.
func (o *Orchestrator) RequestPullStreamWithURL(ctx context.Context, vhostApp, streamName, rawURL string, offset int64) error {
	vh, appName, domain, err := o.resolveVirtualHost(vhostApp)
	if err != nil {
		return err
	}
	return o.requestPull(ctx, vh, appName, streamName, []string{rawURL}, pendingPull{domain: domain}, offset)
}

// RequestPullStream pulls a stream whose URL is derived from the virtual
// host's origin rules by longest-location match.
func (o *Orchestrator) RequestPullStream(ctx context.Context, vhostApp, streamName string, offset int64) error {
	vh, appName, domain, err := o.resolveVirtualHost(vhostApp)
	if err != nil {
		return err
	}

	o.mu.RLock()
	urls, origin := vh.urlsForLocation(appName, streamName)
	o.mu.RUnlock()
	if origin == nil {
		return fmt.Errorf("no origin for %s/%s: %w", vhostApp, streamName, ErrNameUnresolved)
	}

	owner := pendingPull{origin: origin}
	if domain != nil {
		// The caller reached the host through a domain pattern; the domain
		// rule owns the resulting stream.
		owner = pendingPull{domain: domain}
	}
	return o.requestPull(ctx, vh, appName, streamName, urls, owner, offset)
}

// requestPull walks the candidate URLs in order and hands the first one with
// a capable provider to that provider. Concurrent requests for the same
// stream collapse into a single pull.
func (o *Orchestrator) requestPull(ctx context.Context, vh *virtualHost, appName, streamName string, urls []string, owner pendingPull, offset int64) error {
	o.mu.RLock()
	app, ok := vh.appByName(appName)
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("application %q in virtual host %q: %w", appName, vh.name, ErrNameUnresolved)
	}
	appInfo := app.info
	fullName := appInfo.Name + "/" + streamName

	_, err, _ := o.pulls.Do(fullName, func() (interface{}, error) {
		var lastErr error
		for _, candidate := range urls {
			scheme := schemeOf(candidate)
			provider, err := o.providerForURL(candidate)
			if err != nil {
				o.logger.Debug("no provider for pull candidate", "url", candidate, "error", err)
				lastErr = err
				continue
			}
			if o.metrics != nil {
				o.metrics.ObservePullAttempt(scheme)
			}

			owner.provider = provider
			o.setPending(fullName, owner)
			if err := provider.PullStream(ctx, appInfo, streamName, candidate, offset); err != nil {
				o.clearPending(fullName)
				o.logger.Warn("provider rejected pull", "vhost_app", appInfo.Name, "stream", streamName, "url", candidate, "error", err)
				lastErr = err
				continue
			}
			o.logger.Info("pull dispatched", "vhost_app", appInfo.Name, "stream", streamName, "url", candidate, "provider", provider.ProviderType().String())
			return nil, nil
		}
		if o.metrics != nil {
			o.metrics.ObservePullFailure(schemeOfFirst(urls))
		}
		if lastErr == nil {
			lastErr = ErrNameUnresolved
		}
		return nil, fmt.Errorf("%w: %w", ErrPullFailed, lastErr)
	})
	return err
}

func (o *Orchestrator) setPending(fullName string, owner pendingPull) {
	o.pullMu.Lock()
	o.pending[fullName] = owner
	o.pullMu.Unlock()
}

func (o *Orchestrator) clearPending(fullName string) {
	o.pullMu.Lock()
	delete(o.pending, fullName)
	o.pullMu.Unlock()
}

func (o *Orchestrator) takePending(fullName string) (pendingPull, bool) {
	o.pullMu.Lock()
	defer o.pullMu.Unlock()
	owner, ok := o.pending[fullName]
	if ok {
		delete(o.pending, fullName)
	}
	return owner, ok
}

func schemeOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" {
		return "unknown"
	}
	return parsed.Scheme
}

func schemeOfFirst(urls []string) string {
	if len(urls) == 0 {
		return "unknown"
	}
	return schemeOf(urls[0])
}
