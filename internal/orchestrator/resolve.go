package orchestrator

import (
	"fmt"
	"strings"
)

// NameSeparator joins the virtual-host and application halves of a canonical
// application name. The "vhost#app" form is the externally visible identity
// of an application and appears in log lines, API responses, and
// inter-module messages.
const NameSeparator = "#"

// ResolveApplicationName builds the canonical application name for a
// virtual host and application.
func ResolveApplicationName(vhost, app string) string {
	return vhost + NameSeparator + app
}

// ParseVHostAppName splits a canonical name on its first separator.
func ParseVHostAppName(vhostApp string) (vhost, app string, err error) {
	idx := strings.Index(vhostApp, NameSeparator)
	if idx <= 0 || idx == len(vhostApp)-1 {
		return "", "", fmt.Errorf("malformed application name %q: %w", vhostApp, ErrNameUnresolved)
	}
	return vhostApp[:idx], vhostApp[idx+1:], nil
}

// GetVhostNameFromDomain returns the name of the first virtual host, in
// configuration order, with a domain pattern matching the given domain. The
// result is empty when nothing matches.
func (o *Orchestrator) GetVhostNameFromDomain(domain string) string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if vh, _ := o.vhostForDomain(domain); vh != nil {
		return vh.name
	}
	return ""
}

// vhostForDomain scans hosts in configuration order and domain patterns in
// declaration order, returning the first match. Callers hold o.mu.
func (o *Orchestrator) vhostForDomain(domain string) (*virtualHost, *domainRule) {
	for _, vh := range o.vhostList {
		for _, rule := range vh.domains {
			if rule.matches(domain) {
				return vh, rule
			}
		}
	}
	return nil, nil
}

// ResolveApplicationNameFromDomain builds the canonical application name for
// an application reached through a domain.
func (o *Orchestrator) ResolveApplicationNameFromDomain(domain, app string) (string, error) {
	vhost := o.GetVhostNameFromDomain(domain)
	if vhost == "" {
		return "", fmt.Errorf("domain %q: %w", domain, ErrNameUnresolved)
	}
	return ResolveApplicationName(vhost, app), nil
}

// resolveVirtualHost resolves the vhost half of a canonical name. The half
// may be a virtual-host name or a domain matching one of its patterns; in
// the latter case the matched domain rule is returned so streams pulled on
// behalf of the domain can be attributed to it.
func (o *Orchestrator) resolveVirtualHost(vhostApp string) (*virtualHost, string, *domainRule, error) {
	vhostName, appName, err := ParseVHostAppName(vhostApp)
	if err != nil {
		return nil, "", nil, err
	}

	o.mu.RLock()
	defer o.mu.RUnlock()

	if vh, ok := o.vhostMap[vhostName]; ok {
		return vh, appName, nil, nil
	}
	if vh, rule := o.vhostForDomain(vhostName); vh != nil {
		return vh, appName, rule, nil
	}
	return nil, "", nil, fmt.Errorf("virtual host for %q: %w", vhostApp, ErrNameUnresolved)
}

// GetUrlListForLocation derives the candidate pull URLs for a stream from
// the origin rules of its virtual host. Each URL of the best-matching origin
// is suffixed with "/<stream>"; entries without a scheme get the origin's
// scheme prepended.
func (o *Orchestrator) GetUrlListForLocation(vhostApp, streamName string) ([]string, error) {
	vh, appName, _, err := o.resolveVirtualHost(vhostApp)
	if err != nil {
		return nil, err
	}

	o.mu.RLock()
	defer o.mu.RUnlock()

	urls, origin := vh.urlsForLocation(appName, streamName)
	if origin == nil {
		return nil, fmt.Errorf("no origin for %s/%s: %w", vhostApp, streamName, ErrNameUnresolved)
	}
	return urls, nil
}

// urlsForLocation finds the origin whose location is the longest
// path-segment prefix of "/<app>/<stream>" and expands its URL list. Ties
// are broken by declaration order. Callers hold o.mu.
func (vh *virtualHost) urlsForLocation(appName, streamName string) ([]string, *originRule) {
	path := "/" + appName + "/" + streamName

	var best *originRule
	for _, origin := range vh.origins {
		if origin.state == stateDelete {
			continue
		}
		if !locationMatches(path, origin.location) {
			continue
		}
		if best == nil || len(origin.location) > len(best.location) {
			best = origin
		}
	}
	if best == nil {
		return nil, nil
	}

	urls := make([]string, 0, len(best.urls))
	for _, url := range best.urls {
		full := url
		if !strings.Contains(full, "://") {
			full = best.scheme + "://" + full
		}
		urls = append(urls, strings.TrimRight(full, "/")+"/"+streamName)
	}
	return urls, best
}

// locationMatches reports whether location is a path-segment prefix of path:
// "/live" matches "/live" and "/live/stream" but not "/liveshow".
func locationMatches(path, location string) bool {
	location = strings.TrimRight(location, "/")
	if location == "" {
		return true
	}
	if !strings.HasPrefix(path, location) {
		return false
	}
	return len(path) == len(location) || path[len(location)] == '/'
}
