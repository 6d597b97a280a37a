package orchestrator

import (
	"regexp"
	"strings"

	"emberlive/internal/config"
	"emberlive/internal/models"
)

// itemState is the reconciliation lifecycle shared by virtual hosts, domain
// rules, and origin rules. A fresh snapshot first marks every live item
// needToCheck; the diff then settles each item into notChanged, changed, or
// delete, and a completed apply returns survivors to applied.
type itemState int

const (
	stateUnknown itemState = iota
	stateApplied
	stateNeedToCheck
	stateNotChanged
	stateNew
	stateChanged
	stateDelete
)

func (s itemState) String() string {
	switch s {
	case stateApplied:
		return "applied"
	case stateNeedToCheck:
		return "need-to-check"
	case stateNotChanged:
		return "not-changed"
	case stateNew:
		return "new"
	case stateChanged:
		return "changed"
	case stateDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// strongerState folds child states into the parent under the ordering
// notChanged < changed < new/delete.
func strongerState(current, child itemState) itemState {
	rank := func(s itemState) int {
		switch s {
		case stateNew, stateDelete:
			return 3
		case stateChanged:
			return 2
		case stateNotChanged:
			return 1
		default:
			return 0
		}
	}
	if rank(child) > rank(current) {
		return child
	}
	return current
}

// stream is a live media flow attributed to the rule that caused its pull.
// The provider reference is nil for streams the engine did not pull itself.
type stream struct {
	info     models.Stream
	app      models.Application
	provider Provider
	fullName string
}

// domainRule is a compiled domain pattern plus the streams attributed to it.
// matcher is nil when the pattern did not compile; such a domain matches
// nothing but never aborts reconciliation.
type domainRule struct {
	name    string
	matcher *regexp.Regexp
	streams map[models.StreamID]*stream
	state   itemState
}

func newDomainRule(name string) *domainRule {
	rule := &domainRule{
		name:    name,
		streams: make(map[models.StreamID]*stream),
		state:   stateNew,
	}
	if re, err := compileDomainPattern(name); err == nil {
		rule.matcher = re
	}
	return rule
}

func (d *domainRule) matches(domain string) bool {
	return d.matcher != nil && d.matcher.MatchString(domain)
}

// compileDomainPattern turns a glob-style hostname pattern into an anchored
// regular expression: metacharacters are escaped, then "*" becomes ".*" and
// "?" becomes ".?".
func compileDomainPattern(name string) (*regexp.Regexp, error) {
	escaped := regexp.QuoteMeta(name)
	escaped = strings.ReplaceAll(escaped, `\*`, `.*`)
	escaped = strings.ReplaceAll(escaped, `\?`, `.?`)
	return regexp.Compile("^" + escaped + "$")
}

// originRule binds a location prefix to an upstream URL list and remembers
// the application the rule materialized into.
type originRule struct {
	location string
	scheme   string
	urls     []string
	cfg      config.Origin
	appID    models.ApplicationID
	streams  map[models.StreamID]*stream
	state    itemState
}

func newOriginRule(cfg config.Origin) *originRule {
	rule := &originRule{
		location: cfg.Location,
		scheme:   cfg.Pass.Scheme,
		urls:     append([]string(nil), cfg.Pass.URLs...),
		cfg:      cfg,
		streams:  make(map[models.StreamID]*stream),
		state:    stateNew,
	}
	return rule
}

// sameUpstream reports whether the origin still points at the same upstream
// set: scheme and the ordered URL list are both compared.
func (o *originRule) sameUpstream(cfg config.Origin) bool {
	if o.scheme != cfg.Pass.Scheme {
		return false
	}
	if len(o.urls) != len(cfg.Pass.URLs) {
		return false
	}
	for i, url := range o.urls {
		if url != cfg.Pass.URLs[i] {
			return false
		}
	}
	return true
}

// application pairs the engine-wide application info with the observer the
// orchestrator registered with the media routers and the streams it owns.
// Destroying an application destroys all of its streams.
type application struct {
	info     models.Application
	observer *appObserver
	streams  map[models.StreamID]*stream
}

// virtualHost is the runtime root for one configured host.
type virtualHost struct {
	name    string
	host    config.Host
	domains []*domainRule
	origins []*originRule
	apps    map[models.ApplicationID]*application
	state   itemState
}

func newVirtualHost(host config.Host) *virtualHost {
	vh := &virtualHost{
		name:  host.Name,
		host:  host,
		apps:  make(map[models.ApplicationID]*application),
		state: stateNew,
	}
	for _, name := range host.Domains {
		vh.domains = append(vh.domains, newDomainRule(name))
	}
	for _, origin := range host.Origins {
		vh.origins = append(vh.origins, newOriginRule(origin))
	}
	return vh
}

// markAll moves the host and every child rule into the given state.
func (vh *virtualHost) markAll(state itemState) {
	vh.state = state
	for _, d := range vh.domains {
		d.state = state
	}
	for _, o := range vh.origins {
		o.state = state
	}
}

// appByName finds the application with the given short name.
func (vh *virtualHost) appByName(app string) (*application, bool) {
	for _, a := range vh.apps {
		if a.info.App == app {
			return a, true
		}
	}
	return nil, false
}
