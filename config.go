package wal

import (
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// defaultSegmentBytes is the segment-full threshold: after an append
	// completes, the active segment is rotated if its size has reached or
	// exceeded this value.
	defaultSegmentBytes uint64 = 4 << 20 // 4 MiB

	// defaultFsyncBytes is the batched-fsync granularity: the engine fsyncs
	// the active segment once bytes_since_fsync reaches this value.
	defaultFsyncBytes uint64 = 64 << 10 // 64 KiB
)

// Config centralizes the log's tunables, the way the teacher's Config
// struct centralizes segment size limits.
type Config struct {
	// SegmentBytes is the segment-full threshold (§3). Zero means
	// defaultSegmentBytes.
	SegmentBytes uint64

	// FsyncBytes is the batched-fsync granularity (§4.4). Zero means
	// defaultFsyncBytes.
	FsyncBytes uint64

	// LoadAllSegments controls the open-time recovery policy (§9 open
	// question). False (default) reproduces the spec's baseline: only the
	// highest-id (active) segment is decoded into the in-memory index.
	// True decodes every resident segment, in ascending id order, trading
	// startup cost for full-log random access.
	LoadAllSegments bool

	// Logger receives structured recovery/rotation/compaction events. Nil
	// means a no-op logger.
	Logger log.Logger

	// Registerer receives this instance's Prometheus metrics. Nil means
	// metrics are created but never registered with a collector.
	Registerer prometheus.Registerer
}

// Option mutates a Config before Open applies its defaults.
type Option func(*Config)

// WithSegmentBytes overrides the segment-full threshold.
func WithSegmentBytes(n uint64) Option {
	return func(c *Config) { c.SegmentBytes = n }
}

// WithFsyncBytes overrides the batched-fsync granularity.
func WithFsyncBytes(n uint64) Option {
	return func(c *Config) { c.FsyncBytes = n }
}

// WithLoadAllSegments toggles whether Open decodes every segment (true) or
// only the active one (false, the baseline default).
func WithLoadAllSegments(b bool) Option {
	return func(c *Config) { c.LoadAllSegments = b }
}

// WithLogger sets the structured logger used for recovery/rotation events.
func WithLogger(l log.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithRegisterer sets the Prometheus registerer metrics are registered
// against.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(c *Config) { c.Registerer = r }
}

func (c *Config) applyDefaults() {
	if c.SegmentBytes == 0 {
		c.SegmentBytes = defaultSegmentBytes
	}
	if c.FsyncBytes == 0 {
		c.FsyncBytes = defaultFsyncBytes
	}
	if c.Logger == nil {
		c.Logger = log.NewNopLogger()
	}
}
