package orchestrator

import (
	"context"
	"testing"

	"emberlive/internal/config"
)

func testHost(name string, domains []string, origins ...config.Origin) config.Host {
	return config.Host{Name: name, Domains: domains, Origins: origins}
}

func testOrigin(location, scheme string, urls ...string) config.Origin {
	return config.Origin{
		Location: location,
		Pass:     config.Pass{Scheme: scheme, URLs: urls},
	}
}

func newTestOrchestrator(t *testing.T, hosts ...config.Host) (*Orchestrator, *callLog) {
	t.Helper()
	log := &callLog{}
	orch := New(Config{})
	router := newFakeRouter("router", log)
	if !orch.Register(router) {
		t.Fatal("router registration failed")
	}
	if err := orch.ApplyOriginMap(context.Background(), hosts); err != nil {
		t.Fatalf("ApplyOriginMap: %v", err)
	}
	return orch, log
}

func TestParseVHostAppNameRoundTrip(t *testing.T) {
	cases := []struct{ vhost, app string }{
		{"default", "live"},
		{"h1", "app"},
		{"a.b.c", "x/y"},
	}
	for _, tc := range cases {
		name := ResolveApplicationName(tc.vhost, tc.app)
		vhost, app, err := ParseVHostAppName(name)
		if err != nil {
			t.Fatalf("ParseVHostAppName(%q): %v", name, err)
		}
		if vhost != tc.vhost || app != tc.app {
			t.Fatalf("round trip of (%q, %q) gave (%q, %q)", tc.vhost, tc.app, vhost, app)
		}
	}
}

func TestParseVHostAppNameMalformed(t *testing.T) {
	for _, name := range []string{"", "noseparator", "#app", "vhost#"} {
		if _, _, err := ParseVHostAppName(name); err == nil {
			t.Fatalf("expected error for %q", name)
		}
	}
}

func TestGetVhostNameFromDomain(t *testing.T) {
	orch, _ := newTestOrchestrator(t,
		testHost("h1", []string{"*.example.com"}, testOrigin("/live", "rtmp", "rtmp://src/app")),
		testHost("h2", []string{"exact.org", "cdn-??.example.net"}),
	)

	cases := []struct {
		domain string
		want   string
	}{
		{"a.example.com", "h1"},
		{"deep.sub.example.com", "h1"},
		{"exact.org", "h2"},
		{"cdn-01.example.net", "h2"},
		{"other.org", ""},
		{"example.com", ""},
	}
	for _, tc := range cases {
		if got := orch.GetVhostNameFromDomain(tc.domain); got != tc.want {
			t.Fatalf("GetVhostNameFromDomain(%q) = %q, want %q", tc.domain, got, tc.want)
		}
	}
}

func TestDomainOrderPrefersFirstMatch(t *testing.T) {
	orch, _ := newTestOrchestrator(t,
		testHost("first", []string{"*.example.com"}),
		testHost("second", []string{"a.example.com"}),
	)
	if got := orch.GetVhostNameFromDomain("a.example.com"); got != "first" {
		t.Fatalf("expected configuration order to win, got %q", got)
	}
}

func TestResolveApplicationNameFromDomain(t *testing.T) {
	orch, _ := newTestOrchestrator(t,
		testHost("h1", []string{"*.example.com"}, testOrigin("/live", "rtmp", "rtmp://src/app")),
	)
	name, err := orch.ResolveApplicationNameFromDomain("a.example.com", "live")
	if err != nil {
		t.Fatalf("ResolveApplicationNameFromDomain: %v", err)
	}
	if name != "h1#live" {
		t.Fatalf("got %q, want h1#live", name)
	}
	if _, err := orch.ResolveApplicationNameFromDomain("other.org", "live"); err == nil {
		t.Fatal("expected error for unmatched domain")
	}
}

func TestGetUrlListForLocation(t *testing.T) {
	orch, _ := newTestOrchestrator(t,
		testHost("h1", nil,
			testOrigin("/live", "rtmp", "rtmp://src/app", "backup/app"),
		),
	)
	urls, err := orch.GetUrlListForLocation("h1#live", "stream1")
	if err != nil {
		t.Fatalf("GetUrlListForLocation: %v", err)
	}
	want := []string{"rtmp://src/app/stream1", "rtmp://backup/app/stream1"}
	if len(urls) != len(want) {
		t.Fatalf("expected %d urls, got %v", len(want), urls)
	}
	for i, url := range urls {
		if url != want[i] {
			t.Fatalf("url %d = %q, want %q", i, url, want[i])
		}
	}
}

func TestLocationMatching(t *testing.T) {
	cases := []struct {
		path     string
		location string
		want     bool
	}{
		{"/live/stream", "/live", true},
		{"/live", "/live", true},
		{"/liveshow/stream", "/live", false},
		{"/live/deep/stream", "/live/deep", true},
		{"/other/stream", "/live", false},
		{"/anything", "/", true},
	}
	for _, tc := range cases {
		if got := locationMatches(tc.path, tc.location); got != tc.want {
			t.Fatalf("locationMatches(%q, %q) = %v, want %v", tc.path, tc.location, got, tc.want)
		}
	}
}

func TestLongestLocationWins(t *testing.T) {
	orch, _ := newTestOrchestrator(t,
		testHost("h1", nil,
			testOrigin("/live", "rtmp", "rtmp://shallow/app"),
			config.Origin{
				Location:    "/live/deep",
				Pass:        config.Pass{Scheme: "rtmp", URLs: []string{"rtmp://deep/app"}},
				Application: config.Application{Name: "live"},
			},
		),
	)
	urls, err := orch.GetUrlListForLocation("h1#live", "deep/stream1")
	if err != nil {
		t.Fatalf("GetUrlListForLocation: %v", err)
	}
	if urls[0] != "rtmp://deep/app/deep/stream1" {
		t.Fatalf("expected the longer location to win, got %q", urls[0])
	}
}

func TestCompileDomainPattern(t *testing.T) {
	re, err := compileDomainPattern("*.example.com")
	if err != nil {
		t.Fatalf("compileDomainPattern: %v", err)
	}
	if !re.MatchString("a.example.com") {
		t.Fatal("expected glob to match subdomain")
	}
	if re.MatchString("a.exampleXcom") {
		t.Fatal("dots must be literal")
	}

	// Regex metacharacters in the pattern are literals, never operators.
	re, err = compileDomainPattern("host+1.example.com")
	if err != nil {
		t.Fatalf("compileDomainPattern with metacharacters: %v", err)
	}
	if !re.MatchString("host+1.example.com") {
		t.Fatal("expected literal '+' to match")
	}
	if re.MatchString("host1.example.com") {
		t.Fatal("'+' must not behave as a regex operator")
	}
}
