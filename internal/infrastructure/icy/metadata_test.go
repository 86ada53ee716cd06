// ABOUTME: Tests for ICY metadata demuxing and block encoding
// ABOUTME: Verifies padding, parsing, Latin-1 fallback and audio passthrough
package icy

import (
	"bytes"
	"io"
	"testing"
)

func TestBlockEncoding_Empty(t *testing.T) {
	result := buildBlock("")
	if len(result) != 1 || result[0] != 0x00 {
		t.Errorf("empty string should produce single zero byte, got %v", result)
	}
}

func TestBlockEncoding_ShortString(t *testing.T) {
	result := buildBlock("StreamTitle='Test';")

	if len(result) != 33 {
		t.Errorf("expected 33 bytes, got %d", len(result))
	}
	if result[0] != 2 {
		t.Errorf("expected length byte 2, got %d", result[0])
	}
	if content := string(result[1:20]); content != "StreamTitle='Test';" {
		t.Errorf("expected 'StreamTitle='Test';', got %q", content)
	}
	for i := 20; i < 33; i++ {
		if result[i] != 0x00 {
			t.Errorf("byte %d should be 0x00, got 0x%02x", i, result[i])
		}
	}
}

func TestBlockEncoding_Truncation(t *testing.T) {
	result := buildBlock(string(make([]byte, 5000)))

	if result[0] != 255 {
		t.Errorf("expected length byte 255, got %d", result[0])
	}
	if len(result) != 1+255*16 {
		t.Errorf("expected %d bytes, got %d", 1+255*16, len(result))
	}
}

func TestParseMetadata(t *testing.T) {
	block := buildBlock("StreamTitle='Miles Davis - So What';StreamUrl='http://jazz.example';")

	meta := ParseMetadata(block[1:])
	if meta.Title != "Miles Davis - So What" {
		t.Errorf("unexpected title %q", meta.Title)
	}
	if meta.URL != "http://jazz.example" {
		t.Errorf("unexpected url %q", meta.URL)
	}
}

func TestParseMetadata_Latin1(t *testing.T) {
	meta := ParseMetadata([]byte("StreamTitle='Caf\xe9 del Mar';\x00\x00"))
	if meta.Title != "Café del Mar" {
		t.Errorf("expected Latin-1 decoding, got %q", meta.Title)
	}
}

func TestParseMetadata_ApostropheInTitle(t *testing.T) {
	meta := ParseMetadata([]byte("StreamTitle='Don't Stop';"))
	if meta.Title != "Don't Stop" {
		t.Errorf("unexpected title %q", meta.Title)
	}
}

func TestReader_StripsMetadata(t *testing.T) {
	audio := bytes.Repeat([]byte("0123456789"), 10)
	titles := []string{"StreamTitle='one';", "", "StreamTitle='three';"}
	stream := interleave(audio, 32, func(i int) string {
		if i < len(titles) {
			return titles[i]
		}
		return ""
	})

	var got []string
	r := NewReader(bytes.NewReader(stream), 32, func(m Metadata) {
		got = append(got, m.Title)
	})

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !bytes.Equal(out, audio) {
		t.Errorf("audio corrupted: got %d bytes, want %d", len(out), len(audio))
	}
	if len(got) != 2 || got[0] != "one" || got[1] != "three" {
		t.Errorf("expected titles [one three], got %v", got)
	}
}

func TestReader_NoMetaint(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte("plain")), 0, nil)
	out, _ := io.ReadAll(r)
	if string(out) != "plain" {
		t.Errorf("expected passthrough, got %q", out)
	}
}

// buildBlock encodes text as a length byte followed by the payload padded to
// 16 bytes.
func buildBlock(text string) []byte {
	if text == "" {
		return []byte{0x00}
	}

	payload := []byte(text)
	if len(payload) > 255*16 {
		payload = payload[:255*16]
	}

	blocks := (len(payload) + 15) / 16
	pad := blocks*16 - len(payload)

	var buf bytes.Buffer
	buf.WriteByte(byte(blocks))
	buf.Write(payload)
	buf.Write(make([]byte, pad))

	return buf.Bytes()
}

// interleave inserts a metadata block after every metaint bytes of audio,
// using meta(i) as the text of the i-th block.
func interleave(audio []byte, metaint int, meta func(i int) string) []byte {
	var out bytes.Buffer
	for i := 0; len(audio) > 0; i++ {
		n := min(metaint, len(audio))
		out.Write(audio[:n])
		audio = audio[n:]
		if n == metaint {
			out.Write(buildBlock(meta(i)))
		}
	}
	return out.Bytes()
}
