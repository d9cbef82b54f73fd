// Package export writes buffered time-series snapshots out to spreadsheet
// files at flush points.
package export

import (
	"time"

	"github.com/hydropulse/hydropulse/pkg/sensor"
)

// Kind says which retention a snapshot came from; session snapshots land in
// a separate subdirectory.
type Kind string

const (
	KindRecent  Kind = "recent"
	KindSession Kind = "session"
)

// Series is one channel's named value sequence.
type Series struct {
	Name   string
	Values []sensor.Value
}

// Snapshot is a flush payload: a shared timestamp sequence plus one series
// per channel, all the same length.
type Snapshot struct {
	Session    string
	Kind       Kind
	Timestamps []time.Time
	Series     []Series
}

// Exporter persists a snapshot asynchronously. The returned channel yields
// exactly one result; callers must not block the data path on it.
type Exporter interface {
	Export(Snapshot) <-chan error
}
