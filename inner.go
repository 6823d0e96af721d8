package rasterpipe

import (
	"github.com/Skryldev/rasterpipe/core"
	"github.com/Skryldev/rasterpipe/pipeline"
)

// Inner exposes the underlying core.Processor for advanced use (e.g., direct
// registry access in tests).  Prefer the high-level API for normal usage.
func (p *Processor) Inner() *core.Processor { return p.inner }

// Executor exposes the pipeline executor shared by every run.
func (p *Processor) Executor() *pipeline.Executor { return p.executor }
