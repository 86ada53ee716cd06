// ABOUTME: Stream source element shared by the vfs and http backends
// ABOUTME: Holds properties, notifies on iradio changes and dispatches Open by scheme
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/harper/radio-tuner/internal/infrastructure/pipeline"
)

// Element is a source backend. The vfs flavour reads http(s) and local files
// through a "location" property; the http flavour only reads http(s) through
// a "uri" property.
type Element struct {
	name        string
	locationKey string
	localFiles  bool
	http        *httpOpener

	mu     sync.Mutex
	props  map[string]string
	notify []func(string)
	open   []io.Closer
	closed bool
}

// NewVFS returns a source for http(s) URLs and local paths.
func NewVFS(cfg HTTPConfig) *Element {
	return newElement("vfs", "location", true, cfg)
}

// NewHTTP returns a source for http(s) URLs only.
func NewHTTP(cfg HTTPConfig) *Element {
	return newElement("http", "uri", false, cfg)
}

func newElement(name, locationKey string, localFiles bool, cfg HTTPConfig) *Element {
	return &Element{
		name:        name,
		locationKey: locationKey,
		localFiles:  localFiles,
		http:        newHTTPOpener(cfg),
		props: map[string]string{
			locationKey:        "",
			pipeline.PropName:  "",
			pipeline.PropGenre: "",
			pipeline.PropTitle: "",
			pipeline.PropURL:   "",
		},
	}
}

func (e *Element) Name() string {
	return e.name
}

func (e *Element) SetProperty(name, value string) error {
	e.mu.Lock()
	_, ok := e.props[name]
	if ok {
		e.props[name] = value
	}
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("%s: %w %q", e.name, pipeline.ErrUnknownProperty, name)
	}
	return nil
}

func (e *Element) Property(name string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.props[name]
}

func (e *Element) Notify(fn func(property string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notify = append(e.notify, fn)
}

// setIRadio updates an iradio property and notifies when the value changed.
func (e *Element) setIRadio(name, value string) {
	e.mu.Lock()
	if e.closed || e.props[name] == value {
		e.mu.Unlock()
		return
	}
	e.props[name] = value
	listeners := append([]func(string){}, e.notify...)
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(name)
	}
}

func (e *Element) Open(ctx context.Context) (io.ReadCloser, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, errors.New("source closed")
	}
	location := e.props[e.locationKey]
	e.mu.Unlock()

	if location == "" {
		return nil, fmt.Errorf("%s: no %s set", e.name, e.locationKey)
	}

	var (
		rc  io.ReadCloser
		err error
	)

	switch scheme := schemeOf(location); {
	case scheme == "http" || scheme == "https":
		rc, err = e.http.open(ctx, location, e.setIRadio)
	case e.localFiles && (scheme == "" || scheme == "file"):
		rc, err = openFile(location)
	default:
		err = fmt.Errorf("%s: unsupported location %q", e.name, location)
	}
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.open = append(e.open, rc)
	e.mu.Unlock()

	return rc, nil
}

// Close stops the element. Streams it opened are closed and notifications stop.
func (e *Element) Close() error {
	e.mu.Lock()
	open := e.open
	e.open = nil
	e.closed = true
	e.notify = nil
	e.mu.Unlock()

	var errs []error
	for _, c := range open {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func schemeOf(location string) string {
	u, err := url.Parse(location)
	if err != nil || len(u.Scheme) < 2 {
		// Windows drive letters parse as one-letter schemes.
		return ""
	}
	return strings.ToLower(u.Scheme)
}
