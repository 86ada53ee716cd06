// ABOUTME: Audio output through the system sound device using beep's speaker
// ABOUTME: Reinitializes the device whenever the output sample rate changes
package sink

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"go.uber.org/zap"
)

// SpeakerBufferSize is the device buffer length.
const SpeakerBufferSize = 200 * time.Millisecond

var (
	probeOnce sync.Once
	probeErr  error
)

// SpeakerAvailable reports whether a sound device can be opened.
func SpeakerAvailable() bool {
	probeOnce.Do(func() {
		rate := beep.SampleRate(44100)
		probeErr = speaker.Init(rate, rate.N(SpeakerBufferSize))
	})
	return probeErr == nil
}

type Speaker struct {
	log *zap.Logger

	mu   sync.Mutex
	rate beep.SampleRate
}

func NewSpeaker(log *zap.Logger) *Speaker {
	return &Speaker{log: log}
}

func (s *Speaker) Name() string {
	return "speaker"
}

func (s *Speaker) Start(rate beep.SampleRate, st beep.Streamer, done func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rate != s.rate {
		if err := speaker.Init(rate, rate.N(SpeakerBufferSize)); err != nil {
			return fmt.Errorf("failed to initialize speaker: %w", err)
		}
		s.rate = rate
		s.log.Debug("speaker initialized", zap.Int("rate", int(rate)), zap.Duration("buffer", SpeakerBufferSize))
	}

	speaker.Play(beep.Seq(st, beep.Callback(done)))
	return nil
}

// Stop drops everything queued on the device. Once it returns the speaker
// no longer pulls from the stream.
func (s *Speaker) Stop() {
	speaker.Clear()
}
