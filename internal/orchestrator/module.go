package orchestrator

import (
	"context"
	"strings"

	"emberlive/internal/models"
)

// ModuleKind classifies the modules the orchestrator coordinates.
type ModuleKind int

const (
	KindUnknown ModuleKind = iota
	KindProvider
	KindMediaRouter
	KindTranscoder
	KindPublisher
)

func (k ModuleKind) String() string {
	switch k {
	case KindProvider:
		return "provider"
	case KindMediaRouter:
		return "mediarouter"
	case KindTranscoder:
		return "transcoder"
	case KindPublisher:
		return "publisher"
	default:
		return "unknown"
	}
}

// createOrder lists module kinds in the order application creation fans out.
// Media routers go first because downstream modules may subscribe to the
// router during their own create. Deletion walks this slice backwards.
var createOrder = []ModuleKind{KindMediaRouter, KindProvider, KindTranscoder, KindPublisher}

// Module is the minimal contract every registered module satisfies. The
// orchestrator compares modules by interface identity, so implementations
// must be registered as pointers.
type Module interface {
	Kind() ModuleKind

	// OnCreateApplication prepares the module for the application. An error
	// aborts the creation and triggers a rollback across the modules that
	// already succeeded.
	OnCreateApplication(ctx context.Context, app models.Application) error

	// OnDeleteApplication tears the application down. Errors are reported to
	// the caller but never stop the remaining modules from being notified.
	OnDeleteApplication(ctx context.Context, app models.Application) error
}

// ProviderType enumerates the ingress flavors a provider can advertise.
type ProviderType int

const (
	ProviderUnknown ProviderType = iota
	ProviderRTMP
	ProviderRTSPPull
	ProviderOVT
	ProviderMPEGTS
	ProviderFile
	ProviderScheduled
)

func (t ProviderType) String() string {
	switch t {
	case ProviderRTMP:
		return "rtmp"
	case ProviderRTSPPull:
		return "rtsp-pull"
	case ProviderOVT:
		return "ovt"
	case ProviderMPEGTS:
		return "mpegts"
	case ProviderFile:
		return "file"
	case ProviderScheduled:
		return "scheduled"
	default:
		return "unknown"
	}
}

// providerTypeForScheme maps a URL scheme to the provider flavor that serves
// it. Unknown schemes map to ProviderUnknown, which no provider advertises.
func providerTypeForScheme(scheme string) ProviderType {
	switch strings.ToLower(scheme) {
	case "rtmp", "rtmps":
		return ProviderRTMP
	case "rtsp", "rtsps":
		return ProviderRTSPPull
	case "ovt":
		return ProviderOVT
	case "udp", "srt", "mpegts":
		return ProviderMPEGTS
	case "file":
		return ProviderFile
	case "sched":
		return ProviderScheduled
	default:
		return ProviderUnknown
	}
}

// Provider is an ingress module that can pull a stream from an upstream URL.
type Provider interface {
	Module

	ProviderType() ProviderType

	// PullStream asks the provider to pull the named stream for the
	// application from the given URL, starting at offset milliseconds for
	// seekable sources. The provider reports the resulting stream through
	// the media router, not through this call.
	PullStream(ctx context.Context, app models.Application, stream, url string, offset int64) error
}

// StreamObserver receives stream lifecycle callbacks for a single
// application. Frame callbacks exist for modules that consume media; the
// orchestrator's own observer ignores them.
type StreamObserver interface {
	OnCreateStream(stream models.Stream) error
	OnDeleteStream(stream models.Stream) error
	OnSendFrame(stream models.Stream, packet models.Packet) error
}

// MediaRouter is the routing fabric module. Besides the module lifecycle it
// accepts per-application observer registrations.
type MediaRouter interface {
	Module

	RegisterObserver(app models.Application, observer StreamObserver) error
	UnregisterObserver(app models.Application, observer StreamObserver) error
}
