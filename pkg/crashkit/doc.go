// Package crashkit provides a durable crash and error reporting client.
//
// crashkit captures failure events inside a host program, enriches them with
// session, breadcrumb and runtime metadata, and ships them to a collector even
// across process death and network outages. Payloads that cannot be delivered
// immediately are written to a bounded on-disk queue and retried later.
//
// # Core Components
//
// The library is organized around these concepts:
//
//   - Event: a single captured error with its HandledState and context
//   - HandledState: why an event has its severity and whether it counts as a crash
//   - Session: a window of usage with handled/unhandled counters
//   - Deliverer: transport for event and session payloads (http, cxdb, stderr, multi, noop)
//   - store.Store: capacity-bounded disk queue with in-flight tracking
//   - flush.Controller: drains a store, at most one pass at a time
//   - delivery.Delegate: picks sync, async, store-then-flush or store-only delivery
//   - session.Tracker: foreground-timeout session auto-capture
//
// # Quick Start
//
//	cfg, err := config.Load("crashkit.yaml")
//	c, err := client.New(cfg, client.WithDeliverer(http.New(cfg)))
//	c.Start(ctx)
//	defer c.Close()
//	defer crashkit.Recover(ctx, c)
//
//	c.Notify(ctx, err)
//
// # Design Principles
//
//   - Capture never destabilizes the host: every telemetry failure is logged and swallowed
//   - Unhandled events hit the disk before any network attempt
//   - A stored file is delivered by at most one goroutine at a time
package crashkit
