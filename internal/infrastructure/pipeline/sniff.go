// ABOUTME: Stream type detection from the first bytes of encoded audio
// ABOUTME: Picks a beep decoder and derives codec tags from container headers
package pipeline

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"github.com/harper/radio-tuner/internal/domain"
)

// sniffSize is how many bytes the decoder inspects before choosing a codec.
const sniffSize = 8192

type decodeFunc func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error)

type streamType struct {
	name   string
	decode decodeFunc
	tags   domain.Tags
}

// MPEG audio bitrate table (kbps) indexed by [version bits][layer bits][index].
var mpegBitrates = [4][4][16]int{
	{ // Version 2.5
		{},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256, 0},
	},
	{}, // Reserved
	{ // Version 2
		{},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256, 0},
	},
	{ // Version 1
		{},
		{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0},
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384, 0},
		{0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448, 0},
	},
}

// MPEG sample rates (Hz) indexed by [version bits][index].
var mpegSampleRates = [4][4]int{
	{11025, 12000, 8000, 0},
	{0, 0, 0, 0},
	{22050, 24000, 16000, 0},
	{44100, 48000, 32000, 0},
}

var mpegChannelModes = [4]string{"stereo", "joint-stereo", "dual-channel", "mono"}

// sniff identifies the stream in head. ok is false for unknown data.
func sniff(head []byte) (streamType, bool) {
	switch {
	case bytes.HasPrefix(head, []byte("OggS")):
		return streamType{name: "vorbis", decode: vorbis.Decode, tags: vorbisTags(head)}, true
	case bytes.HasPrefix(head, []byte("fLaC")):
		return streamType{name: "flac", decode: decodeReader(flac.Decode), tags: domain.Tags{"audio-codec": "FLAC"}}, true
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return streamType{name: "wav", decode: decodeReader(wav.Decode), tags: domain.Tags{"audio-codec": "WAV"}}, true
	}

	offset := 0
	if bytes.HasPrefix(head, []byte("ID3")) && len(head) >= 10 {
		offset = 10 + syncsafe(head[6:10])
		if head[5]&0x10 != 0 {
			offset += 10
		}
		if offset >= len(head) {
			// Tag larger than the sniff window; trust the ID3 marker.
			return streamType{name: "mp3", decode: mp3.Decode, tags: domain.Tags{"audio-codec": "MPEG"}}, true
		}
	}

	if tags, ok := mpegTags(head[offset:]); ok {
		return streamType{name: "mp3", decode: mp3.Decode, tags: tags}, true
	}
	return streamType{}, false
}

// mpegTags scans for the first valid frame header, checking that the frame
// after it also starts with a sync word when it lies inside head.
func mpegTags(data []byte) (domain.Tags, bool) {
	for i := 0; i+4 <= len(data); i++ {
		h, ok := parseMPEGHeader(data[i : i+4])
		if !ok {
			continue
		}
		if next := i + h.frameSize; next+2 <= len(data) {
			if data[next] != 0xFF || data[next+1]&0xE0 != 0xE0 {
				continue
			}
		}

		tags := domain.Tags{
			"audio-codec":  "MPEG",
			"layer":        h.layer,
			"bitrate":      h.bitrate * 1000,
			"rate":         h.sampleRate,
			"channel-mode": h.channelMode,
		}
		return tags, true
	}
	return nil, false
}

type mpegHeader struct {
	layer       int
	bitrate     int
	sampleRate  int
	channelMode string
	frameSize   int
}

func parseMPEGHeader(b []byte) (mpegHeader, bool) {
	if b[0] != 0xFF || b[1]&0xE0 != 0xE0 {
		return mpegHeader{}, false
	}

	version := (b[1] >> 3) & 0x03
	layerBits := (b[1] >> 1) & 0x03
	bitrateIndex := (b[2] >> 4) & 0x0F
	rateIndex := (b[2] >> 2) & 0x03
	padding := int((b[2] >> 1) & 0x01)
	mode := (b[3] >> 6) & 0x03

	if version == 1 || layerBits == 0 || bitrateIndex == 0 || bitrateIndex == 15 || rateIndex == 3 {
		return mpegHeader{}, false
	}

	bitrate := mpegBitrates[version][layerBits][bitrateIndex]
	rate := mpegSampleRates[version][rateIndex]
	layer := 4 - int(layerBits)

	var size int
	switch {
	case layer == 1:
		size = (12*bitrate*1000/rate + padding) * 4
	case layer == 3 && version != 3:
		size = 72*bitrate*1000/rate + padding
	default:
		size = 144*bitrate*1000/rate + padding
	}

	return mpegHeader{
		layer:       layer,
		bitrate:     bitrate,
		sampleRate:  rate,
		channelMode: mpegChannelModes[mode],
		frameSize:   size,
	}, true
}

func syncsafe(b []byte) int {
	return int(b[0]&0x7F)<<21 | int(b[1]&0x7F)<<14 | int(b[2]&0x7F)<<7 | int(b[3]&0x7F)
}

// vorbisTags reads the identification header from the first Ogg page.
func vorbisTags(head []byte) domain.Tags {
	tags := domain.Tags{"audio-codec": "Vorbis"}

	i := bytes.Index(head, []byte("\x01vorbis"))
	if i < 0 || i+7+23 > len(head) {
		return tags
	}
	id := head[i+7:]

	tags["channels"] = int(id[4])
	tags["rate"] = int(binary.LittleEndian.Uint32(id[5:9]))
	if hi := int32(binary.LittleEndian.Uint32(id[9:13])); hi > 0 {
		tags["maximum-bitrate"] = int(hi)
	}
	if nominal := int32(binary.LittleEndian.Uint32(id[13:17])); nominal > 0 {
		tags["nominal-bitrate"] = int(nominal)
	}
	if lo := int32(binary.LittleEndian.Uint32(id[17:21])); lo > 0 {
		tags["minimum-bitrate"] = int(lo)
	}
	return tags
}

func decodeReader(fn func(io.Reader) (beep.StreamSeekCloser, beep.Format, error)) decodeFunc {
	return func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
		return fn(rc)
	}
}
