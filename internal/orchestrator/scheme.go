package orchestrator

import (
	"fmt"
	"net/url"
	"strings"
)

// providerForScheme returns the first registered provider advertising the
// flavor that serves the given URL scheme.
func (o *Orchestrator) providerForScheme(scheme string) (Provider, error) {
	want := providerTypeForScheme(strings.ToLower(scheme))
	if want == ProviderUnknown {
		return nil, fmt.Errorf("scheme %q: %w", scheme, ErrSchemeUnsupported)
	}
	for _, provider := range o.modules.providers() {
		if provider.ProviderType() == want {
			return provider, nil
		}
	}
	return nil, fmt.Errorf("scheme %q: %w", scheme, ErrSchemeUnsupported)
}

// providerForURL parses the URL and dispatches on its scheme.
func (o *Orchestrator) providerForURL(rawURL string) (Provider, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse pull url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, fmt.Errorf("pull url %q has no scheme: %w", rawURL, ErrSchemeUnsupported)
	}
	return o.providerForScheme(parsed.Scheme)
}
