// ABOUTME: Catalog XML serialization with strict schema validation on import
// ABOUTME: Import validates the whole document before touching the store
package station

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/harper/radio-tuner/internal/domain"
)

var markupEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// ExportXML renders the catalog in its persisted XML form.
func (s *Store) ExportXML() string {
	var b strings.Builder

	b.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\" ?>\n")
	b.WriteString("<stations>\n")

	for _, st := range s.List() {
		b.WriteString("\t<station>\n")
		fmt.Fprintf(&b, "\t\t<name>%s</name>\n", markupEscaper.Replace(st.Name))
		fmt.Fprintf(&b, "\t\t<description>%s</description>\n", markupEscaper.Replace(st.Description))
		fmt.Fprintf(&b, "\t\t<website>%s</website>\n", markupEscaper.Replace(st.Website))
		for _, stream := range st.Streams {
			fmt.Fprintf(&b, "\t\t<stream>%s</stream>\n", markupEscaper.Replace(stream))
		}
		b.WriteString("\t</station>\n")
	}

	b.WriteString("</stations>\n")
	return b.String()
}

// ImportXML appends the stations described by text. Any schema violation or
// malformed markup returns an error matching domain.ErrData and leaves the
// store unchanged.
func (s *Store) ImportXML(text string) error {
	stations, err := DecodeXML(strings.NewReader(strings.TrimSpace(text)))
	if err != nil {
		return domain.DataError("import stations", err)
	}

	for _, st := range stations {
		s.Add(st)
	}
	return nil
}

// DecodeXML parses a catalog document without touching any store.
func DecodeXML(r io.Reader) ([]Station, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	root, err := nextStart(dec)
	if err != nil {
		return nil, err
	}
	if root.Name.Local != "stations" {
		return nil, fmt.Errorf("unexpected root element %q", root.Name.Local)
	}

	var stations []Station
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read stations: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local != "station" {
				return nil, fmt.Errorf("unexpected element %q in stations", el.Name.Local)
			}
			st, err := decodeStation(dec)
			if err != nil {
				return nil, err
			}
			stations = append(stations, st)
		case xml.EndElement:
			if err := expectEOF(dec); err != nil {
				return nil, err
			}
			return stations, nil
		case xml.CharData:
		default:
			return nil, fmt.Errorf("unexpected %T in stations", tok)
		}
	}
}

func decodeStation(dec *xml.Decoder) (Station, error) {
	var st Station

	for {
		tok, err := dec.Token()
		if err != nil {
			return Station{}, fmt.Errorf("read station: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			text, err := elementText(dec)
			if err != nil {
				return Station{}, err
			}
			switch el.Name.Local {
			case "name":
				st.Name = text
			case "description":
				st.Description = text
			case "website":
				st.Website = text
			case "stream":
				st.Streams = append(st.Streams, text)
			default:
				return Station{}, fmt.Errorf("unexpected element %q in station", el.Name.Local)
			}
		case xml.EndElement:
			return st, nil
		}
	}
}

// elementText concatenates the direct character data of the current element
// and consumes it through its end tag.
func elementText(dec *xml.Decoder) (string, error) {
	var (
		b     strings.Builder
		depth int
	)

	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("read element: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				return b.String(), nil
			}
			depth--
		case xml.CharData:
			if depth == 0 {
				b.Write(el)
			}
		}
	}
}

func nextStart(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return xml.StartElement{}, errors.New("missing root element")
		}
		if err != nil {
			return xml.StartElement{}, fmt.Errorf("read document: %w", err)
		}
		if el, ok := tok.(xml.StartElement); ok {
			return el, nil
		}
	}
}

func expectEOF(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read document: %w", err)
		}
		if _, ok := tok.(xml.StartElement); ok {
			return errors.New("content after root element")
		}
	}
}
