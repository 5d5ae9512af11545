// Package buffer provides thread-safe circular buffers with configurable overflow policies,
// built-in statistics tracking, and optional Prometheus metrics integration.
//
// # Overview
//
// The buffer package implements high-performance circular buffers for managing data flow
// between producers and consumers in concurrent systems. Buffers are generic, thread-safe,
// and provide comprehensive observability through always-on statistics and optional metrics.
//
// # Quick Start
//
// Basic buffer creation:
//
//	buf, err := buffer.NewCircularBuffer[int](1000)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Write data
//	err = buf.Write(42)
//
//	// Read data
//	value, ok := buf.Read()
//
// With overflow policy and metrics:
//
//	buf, err := buffer.NewCircularBuffer[[]byte](5000,
//		buffer.WithOverflowPolicy[[]byte](buffer.DropOldest),
//		buffer.WithMetrics[[]byte](registry, "network_input"),
//	)
//
// # Overflow Policies
//
// The buffer supports three overflow behaviors when capacity is reached:
//
//   - DropOldest: Remove oldest item to make room (default)
//   - DropNewest: Reject new items when full
//   - Block: Write operations wait for available space
//
// Example with blocking policy:
//
//	buf, _ := buffer.NewCircularBuffer[*Event](100,
//		buffer.WithOverflowPolicy[*Event](buffer.Block),
//	)
//
//	// Write blocks until a reader frees a slot
//	err := buf.Write(event)
//
// WriteWithContext and WriteWithTimeout, which give up on cancellation or
// after a timeout, are methods of the unexported circular buffer type; they
// are not part of the Buffer interface that NewCircularBuffer returns.
//
// # Observability Architecture
//
// The buffer package implements a dual-tracking pattern for comprehensive observability:
//
// Statistics (Always On):
//   - Tracks all operations using atomic counters
//   - Zero configuration required
//   - Available via buf.Stats()
//   - Provides computed metrics (throughput, drop rate, utilization)
//   - No external dependencies
//
// Prometheus Metrics (Optional):
//   - Enabled via WithMetrics() option
//   - Exports to Prometheus for time-series monitoring
//   - Includes component labels for instance identification
//   - Standard metric types (Counter, Gauge)
//
// # Design Decision: Dual Tracking Pattern
//
// Both Statistics and Metrics track operations independently, which appears redundant
// but serves distinct operational purposes:
//
// Why Track Twice?
//
// 1. Independence: Statistics work without Prometheus dependency
//   - Always available for debugging, even in minimal deployments
//   - No external infrastructure required for basic observability
//
// 2. Computed Metrics: Statistics provide derived values not available in raw Prometheus
//   - Throughput (ops/sec) with built-in timing
//   - Drop rate as percentage (drops / writes)
//   - Overflow rate as percentage (overflows / writes)
//   - Utilization relative to capacity
//
// 3. Different Use Cases:
//   - Statistics: Programmatic access, debugging, tests, local monitoring
//   - Metrics: Time-series analysis, dashboards, alerting, production monitoring
//
// 4. Performance Trade-off:
//   - Overhead: ~50-100ns per operation for dual tracking
//   - At 100k ops/sec: ~0.5-1% total overhead
//   - Cost is negligible compared to observability value
//
// Alternative Considered: Metrics-Based Statistics
//
// We considered reading Statistics from Prometheus metrics to avoid duplication:
//
//	func (s *Statistics) Writes() int64 {
//		dto := &dto.Metric{}
//		s.metrics.writes.Write(dto)
//		return int64(dto.Counter.GetValue())
//	}
//
// Rejected because:
//   - Creates Prometheus dependency for basic stats
//   - Reading from Prometheus is slower (~10x) than atomic operations
//   - Breaks Statistics when metrics are disabled
//   - Violates separation of concerns
//
// # Performance Impact
//
// Dual tracking overhead per operation:
//   - 1x atomic increment (Statistics)
//   - 1x atomic increment (Prometheus counter) if enabled
//   - 1x gauge set (Prometheus) if enabled
//
// Benchmarks (M3 MacBook Pro):
//   - Write with stats only: ~97ns/op
//   - Write with stats + metrics: ~102ns/op (~5% overhead)
//   - Read with stats only: ~69ns/op
//   - Read with stats + metrics: ~72ns/op (~4% overhead)
//
// At high throughput (100k ops/sec), dual tracking adds ~5-10ms/sec of overhead,
// which is acceptable for the operational visibility gained.
//
// # Thread Safety
//
// All buffer operations are thread-safe for concurrent use:
//   - Multiple producers can write concurrently
//   - Multiple consumers can read concurrently
//   - Statistics use atomic operations (lock-free)
//   - Metrics use Prometheus atomic types
//   - Internal state protected by sync.RWMutex
//   - Block policy uses sync.Cond for waiting
//
// # API Design Patterns
//
// Functional Options:
//
// The package uses functional options for clean, composable configuration:
//
//	buf, _ := buffer.NewCircularBuffer[T](capacity,
//		buffer.WithOverflowPolicy[T](policy),
//		buffer.WithMetrics[T](registry, prefix),
//		buffer.WithDropCallback[T](callback),
//	)
//
// This pattern provides:
//   - Clear intent with named functions
//   - Easy composition of features
//   - Backward compatibility when adding options
//   - Type-safe configuration
//
// Generic Types:
//
// Buffers are fully generic and work with any Go type:
//
//	intBuffer, _ := buffer.NewCircularBuffer[int](100)
//	byteBuffer, _ := buffer.NewCircularBuffer[[]byte](1000)
//	structBuffer, _ := buffer.NewCircularBuffer[*MyStruct](500)
//
// # Performance Characteristics
//
// Operations:
//   - Write: O(1) constant time
//   - Read: O(1) constant time
//   - ReadBatch: O(n) where n is batch size
//   - Peek: O(1) constant time
//   - Size/IsFull/IsEmpty: O(1) constant time
//
// Memory:
//   - Pre-allocated circular array
//   - Write, Read and Peek reuse the pre-allocated array; ReadBatch allocates
//     its result slice, and Clear copies the dropped items into a new slice
//     when a drop callback is set
//   - Memory usage: capacity * sizeof(T)
//   - Statistics overhead: ~200 bytes
//   - Metrics overhead: ~1KB when enabled
//
// # Common Use Cases
//
// Input Event Buffering:
//
//	inputBuffer, err := buffer.NewCircularBuffer[event.Input](4096,
//		buffer.WithOverflowPolicy[event.Input](buffer.DropOldest),
//		buffer.WithMetrics[event.Input](registry, "input_events"),
//	)
//
// Force-Feedback Command Queue:
//
//	ffBuffer, err := buffer.NewCircularBuffer[event.FF](256,
//		buffer.WithOverflowPolicy[event.FF](buffer.DropOldest),
//		buffer.WithMetrics[event.FF](registry, "ff_events"),
//	)
//
// Drop Accounting:
//
//	inputBuffer, err := buffer.NewCircularBuffer[event.Input](4096,
//		buffer.WithOverflowPolicy[event.Input](buffer.DropOldest),
//		buffer.WithDropCallback[event.Input](func(in event.Input) {
//			slog.Warn("Dropped input event", "source", in.Source)
//		}),
//	)
//
// # Testing
//
// The package includes comprehensive tests with race detection:
//
//	go test -race ./pkg/buffer
//
// Benchmarks are available to validate performance:
//
//	go test -bench=. ./pkg/buffer
//
// # Examples
//
// See buffer_test.go and benchmark_test.go for usage of every operation.
package buffer
