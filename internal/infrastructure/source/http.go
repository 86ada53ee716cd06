// ABOUTME: HTTP stream opener with ICY metadata support
// ABOUTME: Maps icy-* headers and in-band titles onto iradio properties
package source

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/harper/radio-tuner/internal/infrastructure/icy"
	"github.com/harper/radio-tuner/internal/infrastructure/pipeline"
)

type HTTPConfig struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Headers        map[string]string
	UserAgent      string
}

type httpOpener struct {
	cfg    HTTPConfig
	client *http.Client
}

func newHTTPOpener(cfg HTTPConfig) *httpOpener {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		DisableCompression:    true,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: cfg.ReadTimeout,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   0, // No total timeout for streaming
	}

	return &httpOpener{
		cfg:    cfg,
		client: client,
	}
}

func (h *httpOpener) open(ctx context.Context, location string, set func(name, value string)) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", location, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Icy-MetaData", "1")
	if h.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", h.cfg.UserAgent)
	}
	for k, v := range h.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	set(pipeline.PropName, resp.Header.Get("icy-name"))
	set(pipeline.PropGenre, resp.Header.Get("icy-genre"))
	set(pipeline.PropURL, resp.Header.Get("icy-url"))

	metaint, _ := strconv.Atoi(resp.Header.Get("icy-metaint"))
	if metaint <= 0 {
		return resp.Body, nil
	}

	r := icy.NewReader(resp.Body, metaint, func(m icy.Metadata) {
		set(pipeline.PropTitle, m.Title)
		if m.URL != "" {
			set(pipeline.PropURL, m.URL)
		}
	})
	return struct {
		io.Reader
		io.Closer
	}{r, resp.Body}, nil
}
