// Package mmvj maps MIDI controllers and pointing devices onto virtual
// game controllers. It turns knobs, faders, pads, and mouse motion into
// joystick axes and buttons through a configurable transformation engine,
// so music hardware can drive simulators and games that only understand
// joysticks.
//
// # Architecture
//
// The system is a fixed-rate dispatch loop fed by asynchronous input
// adapters and drained into kernel-backed virtual devices:
//
//	┌──────────────┐   ┌───────────────┐
//	│ MIDI ports   │   │ evdev mice    │      input adapters
//	└──────┬───────┘   └──────┬────────┘
//	       │ events           │ events
//	       └────────┬─────────┘
//	                ▼
//	        ┌───────────────┐
//	        │    engine     │  tick loop, mappings,
//	        │               │  transformation pipelines
//	        └──────┬────────┘
//	               │ samples                ▲ force feedback
//	               ▼                        │
//	        ┌───────────────┐        ┌──────┴────────┐
//	        │ uinput output │        │ FF reader     │
//	        └───────────────┘        └───────────────┘
//
// Input adapters normalize device events into a shared event vocabulary
// and enqueue them without blocking. The engine drains the queue once per
// tick, routes events through per-mapping transformation pipelines, and
// writes the resulting control values to the output adapter. Virtual
// joysticks report force-feedback requests back into the engine, where
// physics stages consume them.
//
// # Package Layout
//
//   - cmd/midimapd: entry point, flags, subcommands for enumeration,
//     monitoring, learning, and validation
//   - component: lifecycle contract and ordered start/stop manager
//   - config: YAML document model, predefines, validation, hot reload
//   - engine: tick loop, routing, revision swaps
//   - event: shared event and sample vocabulary
//   - pipeline: transformation stages and their composition
//   - stage: individual transformations (curves, ranges, physics)
//   - input/midi, input/pointer: device adapters
//   - output/joystick: uinput device management and force feedback
//   - observer: WebSocket steering indicator
//   - errors, health, metric: classified errors, health monitoring,
//     Prometheus metrics
//   - pkg/: shared infrastructure (buffering, retry, security, TLS, ACME)
//
// # Configuration
//
// A YAML document declares input devices, virtual joysticks, and the
// mappings between them. The configuration manager watches the document
// and republishes validated revisions; the engine swaps revisions between
// ticks, preserving virtual joysticks whose identity is unchanged so games
// keep their device handles across edits.
//
// # Lifecycle
//
// Every long-running piece implements component.Component. The manager
// starts adapters before the engine, so device materialization happens
// against initialized adapters, and stops them in reverse on shutdown.
package mmvj
