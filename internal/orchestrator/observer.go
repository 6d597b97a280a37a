package orchestrator

import (
	"context"

	"emberlive/internal/journal"
	"emberlive/internal/models"
)

// appObserver routes per-application stream callbacks from the media router
// back into the orchestrator. It holds a non-owning handle to the
// coordinator; the application info is carried by value so a late callback
// after deletion cannot follow a dangling reference.
type appObserver struct {
	orch *Orchestrator
	app  models.Application
}

func (a *appObserver) OnCreateStream(info models.Stream) error {
	return a.orch.onCreateStream(a.app, info)
}

func (a *appObserver) OnDeleteStream(info models.Stream) error {
	return a.orch.onDeleteStream(a.app, info)
}

// OnSendFrame ignores media packets. The orchestrator is a control-plane
// component; frames belong to the routing fabric.
func (a *appObserver) OnSendFrame(models.Stream, models.Packet) error {
	return nil
}

// onCreateStream files a newly reported stream under the rule whose pull
// produced it. Streams the engine did not pull itself (direct ingest) stay
// unattributed but are still counted and announced.
func (o *Orchestrator) onCreateStream(app models.Application, info models.Stream) error {
	fullName := info.FullName(app)
	pending, pulled := o.takePending(fullName)

	s := &stream{info: info, app: app, fullName: fullName}
	if pulled {
		s.provider = pending.provider
	}

	o.mu.Lock()
	vh, ok := o.vhostMap[app.VHost]
	var entry *application
	if ok {
		entry = vh.apps[app.ID]
	}
	if entry != nil {
		entry.streams[info.ID] = s
		if pulled {
			switch {
			case pending.origin != nil:
				pending.origin.streams[info.ID] = s
			case pending.domain != nil:
				pending.domain.streams[info.ID] = s
			}
		}
	}
	o.mu.Unlock()
	if entry == nil {
		o.logger.Warn("stream for unknown application", "vhost_app", app.Name, "stream", info.Name)
		return nil
	}

	if o.metrics != nil {
		o.metrics.StreamStarted()
	}
	ctx := context.Background()
	if o.journal != nil {
		if err := o.journal.Record(ctx, journal.Event{
			Kind:   journal.EventStreamStarted,
			VHost:  app.VHost,
			App:    app.Name,
			Stream: info.Name,
		}); err != nil {
			o.logger.Warn("journal stream start", "error", err)
		}
	}
	if o.streams != nil {
		if err := o.streams.Announce(ctx, fullName); err != nil {
			o.logger.Warn("announce stream", "stream", fullName, "error", err)
		}
	}
	o.logger.Info("stream created", "vhost_app", app.Name, "stream", info.Name, "pulled", pulled)
	return nil
}

// onDeleteStream removes the stream from its application and from whichever
// rule holds it. Unknown streams (already torn down with their application)
// are ignored so late router callbacks never double-count.
func (o *Orchestrator) onDeleteStream(app models.Application, info models.Stream) error {
	o.mu.Lock()
	var removed *stream
	if vh, ok := o.vhostMap[app.VHost]; ok {
		if entry := vh.apps[app.ID]; entry != nil {
			if s, tracked := entry.streams[info.ID]; tracked {
				delete(entry.streams, info.ID)
				removed = s
			}
		}
		vh.removeStream(info.ID)
	}
	o.mu.Unlock()

	if removed == nil {
		return nil
	}
	o.streamStopped(context.Background(), removed)
	o.logger.Info("stream deleted", "vhost_app", app.Name, "stream", info.Name)
	return nil
}

// streamStopped emits the death of a stream to metrics, journal, and the
// directory sink.
func (o *Orchestrator) streamStopped(ctx context.Context, s *stream) {
	if o.metrics != nil {
		o.metrics.StreamStopped()
	}
	if o.journal != nil {
		if err := o.journal.Record(ctx, journal.Event{
			Kind:   journal.EventStreamStopped,
			VHost:  s.app.VHost,
			App:    s.app.Name,
			Stream: s.info.Name,
		}); err != nil {
			o.logger.Warn("journal stream stop", "error", err)
		}
	}
	if o.streams != nil {
		if err := o.streams.Withdraw(ctx, s.fullName); err != nil {
			o.logger.Warn("withdraw stream", "stream", s.fullName, "error", err)
		}
	}
}

// removeStream deletes the stream from every rule map. Callers hold o.mu.
func (vh *virtualHost) removeStream(id models.StreamID) *stream {
	for _, rule := range vh.domains {
		if s, ok := rule.streams[id]; ok {
			delete(rule.streams, id)
			return s
		}
	}
	for _, rule := range vh.origins {
		if s, ok := rule.streams[id]; ok {
			delete(rule.streams, id)
			return s
		}
	}
	return nil
}
