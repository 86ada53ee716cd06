// ABOUTME: ICY in-band metadata for Shoutcast/Icecast streams
// ABOUTME: Demuxes metadata blocks from audio and parses StreamTitle/StreamUrl
package icy

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Metadata is one parsed in-band metadata block.
type Metadata struct {
	Title string
	URL   string
	Raw   string
}

// Reader strips metadata blocks from an ICY stream, passing audio through.
type Reader struct {
	r         io.Reader
	metaint   int
	remaining int
	onMeta    func(Metadata)
	block     []byte
}

// NewReader wraps r, whose audio is interleaved with a metadata block every
// metaint bytes. onMeta runs on the reading goroutine for every non-empty block.
func NewReader(r io.Reader, metaint int, onMeta func(Metadata)) *Reader {
	return &Reader{
		r:         r,
		metaint:   metaint,
		remaining: metaint,
		onMeta:    onMeta,
		block:     make([]byte, 255*16),
	}
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.metaint <= 0 {
		return r.r.Read(p)
	}

	if r.remaining == 0 {
		if err := r.readBlock(); err != nil {
			return 0, err
		}
		r.remaining = r.metaint
	}

	if len(p) > r.remaining {
		p = p[:r.remaining]
	}
	n, err := r.r.Read(p)
	r.remaining -= n
	return n, err
}

func (r *Reader) readBlock() error {
	var length [1]byte
	if _, err := io.ReadFull(r.r, length[:]); err != nil {
		return fmt.Errorf("read metadata length: %w", err)
	}

	size := int(length[0]) * 16
	if size == 0 {
		return nil
	}

	block := r.block[:size]
	if _, err := io.ReadFull(r.r, block); err != nil {
		return fmt.Errorf("read metadata block: %w", err)
	}

	if r.onMeta != nil {
		r.onMeta(ParseMetadata(block))
	}
	return nil
}

// ParseMetadata decodes a padded block. Text that is not valid UTF-8 is
// treated as Latin-1.
func ParseMetadata(block []byte) Metadata {
	block = bytes.TrimRight(block, "\x00")

	text := string(block)
	if !utf8.Valid(block) {
		if decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(block); err == nil {
			text = string(decoded)
		}
	}

	return Metadata{
		Title: extractKV(text, "StreamTitle"),
		URL:   extractKV(text, "StreamUrl"),
		Raw:   text,
	}
}

// extractKV finds Key='value'; in a semicolon-separated ICY string.
func extractKV(icy string, key string) string {
	keyEq := key + "='"
	if i := strings.Index(icy, keyEq); i >= 0 {
		rest := icy[i+len(keyEq):]
		if j := strings.Index(rest, "';"); j >= 0 {
			return rest[:j]
		}
		return strings.TrimSuffix(rest, "'")
	}
	return ""
}
