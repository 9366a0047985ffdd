// Package download implements the two ways a local model gets onto disk:
// FileSet transfers every manifest entry itself, Package delegates to the
// self-managing backend and synthesizes progress while it works.
package download

import (
	"context"

	"voxkey/internal/registry"
)

// Sink receives aggregate progress in [0,1] for one download session.
// Implementations must not block.
type Sink interface {
	Progress(fraction float64)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(fraction float64)

func (f SinkFunc) Progress(fraction float64) { f(fraction) }

// Downloader brings one model to the ready state. It returns nil on
// success, ctx.Err() when cancelled, and a typed error otherwise.
type Downloader interface {
	Download(ctx context.Context, d registry.Descriptor, sink Sink) error
}

// Settler is implemented by downloaders whose backend work can outlive a
// cancelled Download. Settled is closed once nothing runs for the model.
type Settler interface {
	Settled(modelID string) <-chan struct{}
}

// ReadinessSink is an optional Sink extension told the result of the
// readiness rescan that follows each accepted file.
type ReadinessSink interface {
	Sink
	Readiness(ready bool)
}

type nopSink struct{}

func (nopSink) Progress(float64) {}

func sinkOrNop(s Sink) Sink {
	if s == nil {
		return nopSink{}
	}
	return s
}
