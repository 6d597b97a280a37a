package modules

import (
	"context"

	"emberlive/internal/models"
	"emberlive/internal/orchestrator"
)

// NoopModule accepts every application lifecycle call without side effects.
// It keeps deployments with a disabled module kind free of conditional
// wiring, mirroring how tests register placeholder modules.
type NoopModule struct {
	ModuleKind orchestrator.ModuleKind
}

// Kind implements orchestrator.Module.
func (m *NoopModule) Kind() orchestrator.ModuleKind {
	return m.ModuleKind
}

// OnCreateApplication implements orchestrator.Module by accepting the
// application.
func (m *NoopModule) OnCreateApplication(context.Context, models.Application) error {
	return nil
}

// OnDeleteApplication implements orchestrator.Module by accepting the
// deletion.
func (m *NoopModule) OnDeleteApplication(context.Context, models.Application) error {
	return nil
}
