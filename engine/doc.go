// Package engine implements the dispatcher: a single cooperative tick
// loop that routes input events through mapping pipelines and flushes
// the resulting axis and button state to the virtual-controller layer.
//
// # Overview
//
// All pipeline state is owned by one goroutine. Input adapters and the
// virtual-controller layer communicate with it exclusively through
// bounded queues, and the configuration manager through a revision
// channel. The loop suspends on exactly four sources:
//
//	┌──────────────┐  inputs   ┌────────────────────────────┐
//	│ MIDI adapter  │─────────▶│                            │
//	├──────────────┤           │         dispatcher          │  Write/Flush  ┌──────────────┐
//	│ mouse adapter │─────────▶│  tick timer ── pipelines ──│──────────────▶│ uinput layer │
//	└──────────────┘           │                            │               └──────┬───────┘
//	┌──────────────┐  revCh    │                            │      ffs             │
//	│ config mgr    │─────────▶│                            │◀─────────────────────┘
//	└──────────────┘           └────────────────────────────┘
//
// # Tick discipline
//
// Each tick drains the input queue, advances every executor with the
// real elapsed time since the previous tick, drains force feedback for
// the next tick, and flushes outputs. The timer is re-armed with the
// remaining budget; an exhausted budget fires the next tick immediately
// and widens dt rather than queuing catch-up ticks.
//
// # Reloads
//
// A new revision is compiled into a complete wiring off-line and swapped
// in strictly between ticks. A wiring build or output reconcile failure
// keeps the previous wiring active; input reconcile failures only
// degrade, since adapters retry with backoff on their own.
package engine
