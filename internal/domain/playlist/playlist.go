// ABOUTME: Playlist detection and parsing for PLS, M3U and ASX documents
// ABOUTME: Produces ordered stream URIs and serializes URI lists back to PLS
package playlist

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/harper/radio-tuner/internal/domain"
)

// Format identifies a playlist dialect.
type Format int

const (
	M3U Format = iota
	PLS
	ASX
)

func (f Format) String() string {
	switch f {
	case PLS:
		return "pls"
	case ASX:
		return "asx"
	default:
		return "m3u"
	}
}

var (
	plsFileKey = regexp.MustCompile(`^file(\d+)`)
	m3uURI     = regexp.MustCompile(`(?i)^[a-z]+://\S+$`)

	errEmpty = errors.New("no streams in playlist")
)

// Detect picks the dialect of text: PLS by header, ASX by tag, M3U otherwise.
func Detect(text string) Format {
	switch {
	case strings.HasPrefix(strings.TrimSpace(text), "[playlist]"):
		return PLS
	case strings.Contains(strings.ToLower(text), "<asx"):
		return ASX
	default:
		return M3U
	}
}

// Parse returns the stream URIs of text in playlist order.
// Malformed or empty input yields an error matching domain.ErrData.
func Parse(text string) ([]string, error) {
	var (
		uris []string
		err  error
	)

	switch Detect(text) {
	case PLS:
		uris = parsePLS(text)
	case ASX:
		uris, err = parseASX(text)
	default:
		uris = parseM3U(text)
	}

	if err != nil {
		return nil, domain.DataError("parse playlist", err)
	}
	if len(uris) == 0 {
		return nil, domain.DataError("parse playlist", errEmpty)
	}
	return uris, nil
}

func parsePLS(text string) []string {
	files := make(map[int]string)

	for _, line := range strings.Split(text, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		m := plsFileKey.FindStringSubmatch(strings.ToLower(strings.TrimSpace(key)))
		if m == nil {
			continue
		}

		index, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		files[index] = strings.TrimSpace(value)
	}

	indices := make([]int, 0, len(files))
	for i := range files {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	uris := make([]string, 0, len(indices))
	for _, i := range indices {
		uris = append(uris, files[i])
	}
	return uris
}

func parseM3U(text string) []string {
	var uris []string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if m3uURI.MatchString(line) {
			uris = append(uris, line)
		}
	}
	return uris
}

func parseASX(text string) ([]string, error) {
	dec := xml.NewDecoder(strings.NewReader(text))
	dec.CharsetReader = charset.NewReaderLabel

	var (
		uris  []string
		depth int
		root  bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse asx: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				// Detection is case-insensitive, the root name is not.
				if el.Name.Local != "asx" {
					return nil, fmt.Errorf("unexpected root element %q", el.Name.Local)
				}
				root = true
			} else if strings.ToLower(el.Name.Local) == "ref" {
				for _, attr := range el.Attr {
					if strings.ToLower(attr.Name.Local) != "href" {
						continue
					}
					if href := strings.TrimSpace(attr.Value); href != "" {
						uris = append(uris, href)
					}
				}
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}

	if !root {
		return nil, errors.New("missing asx root element")
	}
	return uris, nil
}

// ExportPLS serializes uris as a PLS document.
func ExportPLS(uris []string) string {
	var b strings.Builder

	b.WriteString("[playlist]\n")
	fmt.Fprintf(&b, "NumberOfEntries=%d\n", len(uris))
	for i, uri := range uris {
		fmt.Fprintf(&b, "File%d=%s\n", i+1, uri)
	}
	return b.String()
}
