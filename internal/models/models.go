// Package models holds the value types shared between the orchestrator core,
// its modules, and the admin API: application and stream identities plus the
// media packet envelope observed (and ignored) by the control plane.
package models

import (
	"fmt"
	"strings"
	"time"

	"emberlive/internal/config"
)

// ApplicationID identifies an application process-wide. IDs are allocated
// from a monotonically increasing counter and are never reused within the
// lifetime of an orchestrator.
type ApplicationID int64

// StreamID identifies a stream within the engine. IDs are assigned by the
// media router when a provider produces the stream.
type StreamID int64

// Application is the engine-wide description of a media application. Name is
// the canonical "vhost#app" form; VHost and App carry the two halves so
// callers do not re-parse the canonical name.
type Application struct {
	ID     ApplicationID      `json:"id"`
	Name   string             `json:"name"`
	VHost  string             `json:"vhost"`
	App    string             `json:"app"`
	Config config.Application `json:"config"`
}

// IsValid reports whether the application carries an allocated ID.
func (a Application) IsValid() bool {
	return a.ID > 0 && a.Name != ""
}

func (a Application) String() string {
	return fmt.Sprintf("%s(#%d)", a.Name, a.ID)
}

// Stream describes a single live media flow produced by a provider.
type Stream struct {
	ID        StreamID  `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// FullName returns the engine-wide stream identity "vhost#app/stream".
func (s Stream) FullName(app Application) string {
	return app.Name + "/" + s.Name
}

// PacketKind distinguishes the payload classes the media router forwards to
// stream observers.
type PacketKind int

const (
	PacketUnknown PacketKind = iota
	PacketVideo
	PacketAudio
	PacketData
)

func (k PacketKind) String() string {
	switch k {
	case PacketVideo:
		return "video"
	case PacketAudio:
		return "audio"
	case PacketData:
		return "data"
	default:
		return "unknown"
	}
}

// Packet is the frame envelope observed by stream observers. The orchestrator
// never inspects payloads; the type exists so observer interfaces stay stable
// for modules that do.
type Packet struct {
	Kind    PacketKind
	PTS     int64
	Payload []byte
}

// SplitStreamName splits a "vhost#app/stream" full name back into its
// canonical application name and stream name.
func SplitStreamName(fullName string) (vhostApp, stream string, ok bool) {
	idx := strings.LastIndexByte(fullName, '/')
	if idx <= 0 || idx == len(fullName)-1 {
		return "", "", false
	}
	return fullName[:idx], fullName[idx+1:], true
}
