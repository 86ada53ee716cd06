// ABOUTME: Element contracts for pluggable pipeline backends
// ABOUTME: Sources and sinks are selected from ordered factory lists
package pipeline

import (
	"context"
	"errors"
	"io"

	"github.com/gopxl/beep/v2"
)

// ErrUnknownProperty is returned by SetProperty for names an element lacks.
var ErrUnknownProperty = errors.New("unknown property")

// Source property names carrying station metadata.
const (
	PropName  = "iradio-name"
	PropGenre = "iradio-genre"
	PropTitle = "iradio-title"
	PropURL   = "iradio-url"
)

// Source produces the raw encoded stream for a location.
type Source interface {
	Name() string
	SetProperty(name, value string) error
	Property(name string) string
	// Notify registers fn to run whenever one of the iradio properties changes.
	Notify(fn func(property string))
	Open(ctx context.Context) (io.ReadCloser, error)
	// Close stops the element and releases anything Open acquired.
	Close() error
}

// Sink renders PCM at a fixed sample rate.
type Sink interface {
	Name() string
	// Start begins pulling from s; done runs once s is exhausted.
	Start(rate beep.SampleRate, s beep.Streamer, done func()) error
	// Stop halts output immediately. It is safe to call when idle.
	Stop()
}

type SourceFactory struct {
	Name      string
	Available func() bool
	New       func() (Source, error)
}

type SinkFactory struct {
	Name      string
	Available func() bool
	New       func() (Sink, error)
}
