package orchestrator

import (
	"context"
	"errors"
	"testing"

	"emberlive/internal/config"
)

func TestRequestPullStreamByLocation(t *testing.T) {
	log := &callLog{}
	orch := New(Config{})
	router := newFakeRouter("router", log)
	provider := newFakeProvider("rtmp", ProviderRTMP, log)
	provider.router = router
	orch.Register(router)
	orch.Register(provider)

	ctx := context.Background()
	if err := orch.ApplyOriginMap(ctx, []config.Host{
		testHost("h1", []string{"*.example.com"}, testOrigin("/live", "rtmp", "rtmp://src/app")),
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if err := orch.RequestPullStream(ctx, "h1#live", "stream1", 0); err != nil {
		t.Fatalf("RequestPullStream: %v", err)
	}

	pulls := provider.pullCalls()
	if len(pulls) != 1 {
		t.Fatalf("expected one pull, got %d", len(pulls))
	}
	pull := pulls[0]
	if pull.app.Name != "h1#live" || pull.stream != "stream1" || pull.url != "rtmp://src/app/stream1" || pull.offset != 0 {
		t.Fatalf("unexpected pull call: %+v", pull)
	}
}

func TestRequestPullStreamDispatchesByScheme(t *testing.T) {
	log := &callLog{}
	orch := New(Config{})
	router := newFakeRouter("router", log)
	rtmp := newFakeProvider("rtmp", ProviderRTMP, log)
	rtsp := newFakeProvider("rtsp", ProviderRTSPPull, log)
	orch.Register(router)
	orch.Register(rtmp)
	orch.Register(rtsp)

	ctx := context.Background()
	if err := orch.ApplyOriginMap(ctx, []config.Host{
		testHost("h", nil, testOrigin("/a", "rtmp", "rtmp://src/app")),
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if err := orch.RequestPullStreamWithURL(ctx, "h#a", "s", "rtsp://src/s", 0); err != nil {
		t.Fatalf("RequestPullStreamWithURL: %v", err)
	}
	if len(rtmp.pullCalls()) != 0 {
		t.Fatal("RTMP provider must not receive an RTSP pull")
	}
	if pulls := rtsp.pullCalls(); len(pulls) != 1 || pulls[0].url != "rtsp://src/s" {
		t.Fatalf("unexpected RTSP pulls: %+v", pulls)
	}
}

func TestRequestPullStreamUnsupportedScheme(t *testing.T) {
	log := &callLog{}
	orch := New(Config{})
	orch.Register(newFakeRouter("router", log))
	orch.Register(newFakeProvider("rtmp", ProviderRTMP, log))

	ctx := context.Background()
	if err := orch.ApplyOriginMap(ctx, []config.Host{
		testHost("h", nil, testOrigin("/a", "rtmp", "rtmp://src/app")),
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	err := orch.RequestPullStreamWithURL(ctx, "h#a", "s", "ovt://nowhere/s", 0)
	if !errors.Is(err, ErrSchemeUnsupported) {
		t.Fatalf("expected ErrSchemeUnsupported, got %v", err)
	}
}

func TestRequestPullStreamFallsBackAcrossURLs(t *testing.T) {
	log := &callLog{}
	orch := New(Config{})
	router := newFakeRouter("router", log)
	failing := newFakeProvider("rtmp", ProviderRTMP, log)
	failing.failPull = true
	ovt := newFakeProvider("ovt", ProviderOVT, log)
	orch.Register(router)
	orch.Register(failing)
	orch.Register(ovt)

	ctx := context.Background()
	if err := orch.ApplyOriginMap(ctx, []config.Host{
		testHost("h", nil, config.Origin{
			Location:    "/a",
			Pass:        config.Pass{Scheme: "rtmp", URLs: []string{"rtmp://primary/app", "ovt://backup/app"}},
			Application: config.Application{Name: "a"},
		}),
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if err := orch.RequestPullStream(ctx, "h#a", "s", 0); err != nil {
		t.Fatalf("RequestPullStream: %v", err)
	}
	if len(failing.pullCalls()) != 1 {
		t.Fatal("primary URL must be attempted first")
	}
	if pulls := ovt.pullCalls(); len(pulls) != 1 || pulls[0].url != "ovt://backup/app/s" {
		t.Fatalf("expected fallback to the OVT URL, got %+v", pulls)
	}
}

func TestRequestPullStreamAllProvidersReject(t *testing.T) {
	log := &callLog{}
	orch := New(Config{})
	orch.Register(newFakeRouter("router", log))
	failing := newFakeProvider("rtmp", ProviderRTMP, log)
	failing.failPull = true
	orch.Register(failing)

	ctx := context.Background()
	if err := orch.ApplyOriginMap(ctx, []config.Host{
		testHost("h", nil, testOrigin("/a", "rtmp", "rtmp://src/app")),
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	err := orch.RequestPullStream(ctx, "h#a", "s", 0)
	if !errors.Is(err, ErrPullFailed) {
		t.Fatalf("expected ErrPullFailed, got %v", err)
	}
}

func TestRequestPullStreamUnknownNames(t *testing.T) {
	orch := New(Config{})
	orch.Register(newFakeRouter("router", &callLog{}))

	ctx := context.Background()
	if err := orch.RequestPullStream(ctx, "missing#app", "s", 0); !errors.Is(err, ErrNameUnresolved) {
		t.Fatalf("unknown vhost: expected ErrNameUnresolved, got %v", err)
	}
	if err := orch.RequestPullStream(ctx, "malformed", "s", 0); !errors.Is(err, ErrNameUnresolved) {
		t.Fatalf("malformed name: expected ErrNameUnresolved, got %v", err)
	}

	if err := orch.ApplyOriginMap(ctx, []config.Host{testHost("h", nil)}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := orch.RequestPullStream(ctx, "h#ghost", "s", 0); !errors.Is(err, ErrNameUnresolved) {
		t.Fatalf("unknown app: expected ErrNameUnresolved, got %v", err)
	}
}

func TestRequestPullStreamResolvesDomainName(t *testing.T) {
	log := &callLog{}
	orch := New(Config{})
	router := newFakeRouter("router", log)
	provider := newFakeProvider("rtmp", ProviderRTMP, log)
	orch.Register(router)
	orch.Register(provider)

	ctx := context.Background()
	if err := orch.ApplyOriginMap(ctx, []config.Host{
		testHost("h1", []string{"*.example.com"}, testOrigin("/live", "rtmp", "rtmp://src/app")),
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// The vhost half of the canonical name may be a domain.
	if err := orch.RequestPullStream(ctx, "play.example.com#live", "stream1", 0); err != nil {
		t.Fatalf("RequestPullStream via domain: %v", err)
	}
	if pulls := provider.pullCalls(); len(pulls) != 1 {
		t.Fatalf("expected one pull, got %d", len(pulls))
	}
}

func TestPullOffsetIsForwarded(t *testing.T) {
	log := &callLog{}
	orch := New(Config{})
	router := newFakeRouter("router", log)
	file := newFakeProvider("file", ProviderFile, log)
	orch.Register(router)
	orch.Register(file)

	ctx := context.Background()
	if err := orch.ApplyOriginMap(ctx, []config.Host{
		testHost("h", nil, testOrigin("/vod", "file", "file://media/vod")),
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if err := orch.RequestPullStream(ctx, "h#vod", "movie", 90_000); err != nil {
		t.Fatalf("RequestPullStream: %v", err)
	}
	if pulls := file.pullCalls(); len(pulls) != 1 || pulls[0].offset != 90_000 {
		t.Fatalf("offset must reach the provider, got %+v", pulls)
	}
}
