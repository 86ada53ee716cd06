// ABOUTME: Normalized stream metadata snapshot built from raw tag messages
// ABOUTME: Provides field-by-field diffing so observers fire only on change
package player

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/harper/radio-tuner/internal/domain"
)

// Meta is an immutable snapshot. Nil fields are unknown.
type Meta struct {
	Name        *string     `json:"name"`
	Description *string     `json:"description"`
	Website     *string     `json:"website"`
	Playing     *string     `json:"playing"`
	Format      *string     `json:"format"`
	Bitrate     *int        `json:"bitrate"`
	Codec       domain.Tags `json:"codec"`
}

type MetaField string

const (
	FieldName        MetaField = "name"
	FieldDescription MetaField = "description"
	FieldWebsite     MetaField = "website"
	FieldPlaying     MetaField = "playing"
	FieldFormat      MetaField = "format"
	FieldBitrate     MetaField = "bitrate"
	FieldCodec       MetaField = "codec"
)

// DiffMeta lists the fields whose values differ between prev and next.
func DiffMeta(prev, next Meta) []MetaField {
	var changed []MetaField

	for _, f := range []struct {
		field MetaField
		a, b  *string
	}{
		{FieldName, prev.Name, next.Name},
		{FieldDescription, prev.Description, next.Description},
		{FieldWebsite, prev.Website, next.Website},
		{FieldPlaying, prev.Playing, next.Playing},
		{FieldFormat, prev.Format, next.Format},
	} {
		if !equalPtr(f.a, f.b) {
			changed = append(changed, f.field)
		}
	}
	if !equalPtr(prev.Bitrate, next.Bitrate) {
		changed = append(changed, FieldBitrate)
	}
	if !reflect.DeepEqual(prev.Codec, next.Codec) {
		changed = append(changed, FieldCodec)
	}
	return changed
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Merge overwrites the fields set in update. Codec is always replaced.
func (m Meta) Merge(update Meta) Meta {
	if update.Name != nil {
		m.Name = update.Name
	}
	if update.Description != nil {
		m.Description = update.Description
	}
	if update.Website != nil {
		m.Website = update.Website
	}
	if update.Playing != nil {
		m.Playing = update.Playing
	}
	if update.Format != nil {
		m.Format = update.Format
	}
	if update.Bitrate != nil {
		m.Bitrate = update.Bitrate
	}
	m.Codec = update.Codec
	return m
}

// Normalize maps a raw tag message onto the metadata fields.
func Normalize(tags domain.Tags) Meta {
	var m Meta

	if v, ok := tagString(tags, "iradio-name"); ok {
		m.Name = &v
	}
	if v, ok := tagString(tags, "iradio-genre"); ok {
		m.Description = &v
	}
	if v, ok := tagString(tags, "iradio-url"); ok {
		m.Website = &v
	}

	if v, ok := tagString(tags, "iradio-title"); ok {
		m.Playing = &v
	} else {
		artist, hasArtist := tagString(tags, "artist")
		title, hasTitle := tagString(tags, "title")
		if hasArtist && hasTitle {
			playing := artist + " - " + title
			if title == "" {
				playing = strings.TrimSuffix(playing, " - ")
			}
			m.Playing = &playing
		}
	}

	if v, ok := tagString(tags, "audio-codec"); ok {
		if layer, ok := tags["layer"]; ok && v == "MPEG" {
			v += fmt.Sprintf(" layer %v", layer)
		}
		m.Format = &v
	}

	if v, ok := tagInt(tags, "nominal-bitrate"); ok {
		kbps := v / 1000
		m.Bitrate = &kbps
	} else if v, ok := tagInt(tags, "bitrate"); ok {
		kbps := v / 1000
		m.Bitrate = &kbps
	}

	m.Codec = tags.Clone()
	return m
}

func tagString(tags domain.Tags, key string) (string, bool) {
	v, ok := tags[key]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

func tagInt(tags domain.Tags, key string) (int, bool) {
	switch v := tags[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint:
		return int(v), true
	case uint32:
		return int(v), true
	case uint64:
		return int(v), true
	case float32:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
