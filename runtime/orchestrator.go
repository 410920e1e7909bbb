package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chat-hub/contract"
	"chat-hub/domain/event"
	"chat-hub/observability"
	"chat-hub/repositories"
	"chat-hub/runtime/workers"
)

// Orchestrator wires the registry, the dispatch pipeline and the supervised
// workers together. It carries no domain rules: services decide what happens,
// the orchestrator decides where it runs.
type Orchestrator struct {
	log             *slog.Logger
	registry        *Registry
	repository      repositories.IMessageRepository
	monitoring      *observability.Monitoring
	supervisor      contract.ISupervisor
	sinks           []contract.EventSink
	domainEvents    chan event.DomainEvent
	telemetryEvents chan event.Event
	sinkTimeout     time.Duration
	metricInterval  time.Duration
	latencyBudget   time.Duration
}

func NewOrchestrator(log *slog.Logger,
	registry *Registry,
	repository repositories.IMessageRepository,
	monitoring *observability.Monitoring,
	bufferSize int,
	sinkTimeout, metricInterval, latencyBudget, restartInterval time.Duration) *Orchestrator {
	telemetry := make(chan event.Event, bufferSize)
	return &Orchestrator{
		log:             log,
		registry:        registry,
		repository:      repository,
		monitoring:      monitoring,
		supervisor:      workers.NewSupervisor(log, telemetry, restartInterval),
		domainEvents:    make(chan event.DomainEvent, bufferSize),
		telemetryEvents: telemetry,
		sinkTimeout:     sinkTimeout,
		metricInterval:  metricInterval,
		latencyBudget:   latencyBudget,
	}
}

// AddSinks registers out-of-band event consumers. Must be called before Start.
func (o *Orchestrator) AddSinks(sinks ...contract.EventSink) {
	o.sinks = append(o.sinks, sinks...)
}

// Registry exposes presence lookups to services and transports.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Dispatch hands a persisted-state event to the fanout worker. Fire and
// forget: the caller already holds durable state, so a full channel only
// costs a live push, never the message itself.
func (o *Orchestrator) Dispatch(evt event.DomainEvent) {
	select {
	case o.domainEvents <- evt:
	default:
		o.monitoring.AddDropped(1)
		o.log.Warn(fmt.Sprintf("Domain event channel full, dropping live push %s", evt.EventKind()))
	}
}

// Attach registers a live connection. On the user's 0->1 transition the rest
// of the hub learns about it through a PresenceChanged broadcast.
func (o *Orchestrator) Attach(userID string, conn contract.Conn) int64 {
	id, becameOnline := o.registry.Register(userID, conn)
	if becameOnline {
		o.monitoring.UserOnline()
		o.Dispatch(event.PresenceChanged{UserID: userID, Online: true})
	}
	return id
}

// Detach removes one connection; the offline broadcast fires only when the
// last one goes.
func (o *Orchestrator) Detach(userID string, connID int64) {
	if o.registry.Unregister(userID, connID) {
		o.monitoring.UserOffline()
		o.Dispatch(event.PresenceChanged{UserID: userID, Online: false})
	}
}

// Start assembles the workers and runs the supervisor until ctx is canceled.
func (o *Orchestrator) Start(ctx context.Context) error {
	fanout := workers.NewFanoutWorker(o.log, o.registry, o.repository, o.monitoring,
		o.sinks, o.domainEvents, o.telemetryEvents, o.sinkTimeout)

	capacity := workers.NewChannelCapacityWorker(o.log, []workers.NamedChannel{
		{Name: "domain_events", Channel: o.domainEvents},
		{Name: "telemetry_events", Channel: o.telemetryEvents},
	}, o.telemetryEvents, o.metricInterval)

	telemetry := workers.NewTelemetryWorker(o.log, o.telemetryEvents, []event.Handler{
		event.NewFanoutHandler(o.log, o.latencyBudget),
		event.NewChannelCapacityHandler(o.log, cap(o.domainEvents)/10),
	})

	heartbeat := workers.NewHeartbeatWorker(o.log, o.monitoring, o.metricInterval)

	o.supervisor.Add(fanout, capacity, telemetry, heartbeat)

	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
	return nil
}

// Stop initiates a graceful shutdown: workers observe the canceled context
// and drain.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}
