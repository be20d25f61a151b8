package logging

import (
	"time"
)

type LogEntry struct {
	Timestamp time.Time
	Message   string
	File      string
	Labels    map[string]string
}

// EntryEmitter is the producer-facing side of the shipping pipeline.
// Emit must never block the caller; entries may be silently dropped
// once the pipeline's queue limit is reached.
type EntryEmitter interface {
	Emit(entry LogEntry)
}
