// ABOUTME: Audio output by piping raw float PCM into an ffmpeg process
// ABOUTME: Picks the platform's native output device format per OS
package sink

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os/exec"
	"runtime"
	"strconv"
	"sync"

	"github.com/gopxl/beep/v2"
	"go.uber.org/zap"
)

type FFmpegConfig struct {
	Binary string
	Device string
}

// FFmpegAvailable reports whether the ffmpeg binary is on PATH.
func FFmpegAvailable(binary string) bool {
	if binary == "" {
		binary = "ffmpeg"
	}
	_, err := exec.LookPath(binary)
	return err == nil
}

type FFmpeg struct {
	cfg FFmpegConfig
	log *zap.Logger

	mu   sync.Mutex
	cmd  *exec.Cmd
	stop chan struct{}
	wg   sync.WaitGroup
}

func NewFFmpeg(cfg FFmpegConfig, log *zap.Logger) *FFmpeg {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.Device == "" {
		cfg.Device = "default"
	}
	return &FFmpeg{cfg: cfg, log: log}
}

func (f *FFmpeg) Name() string {
	return "ffmpeg"
}

// buildArgs reads interleaved stereo f32le on stdin and plays it on the
// native output for goos.
func buildArgs(goos string, rate beep.SampleRate, device string) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "f32le",
		"-ar", strconv.Itoa(int(rate)),
		"-ac", "2",
		"-i", "pipe:0",
	}

	switch goos {
	case "linux":
		// PulseAudio (most modern Linux)
		return append(args, "-f", "pulse", device)
	case "darwin":
		return append(args, "-f", "audiotoolbox", device)
	default:
		return append(args, "-f", "sdl2", "radio")
	}
}

func (f *FFmpeg) Start(rate beep.SampleRate, st beep.Streamer, done func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cmd := exec.Command(f.cfg.Binary, buildArgs(runtime.GOOS, rate, f.cfg.Device)...)
	cmd.Stderr = zap.NewStdLog(f.log.Named("ffmpeg")).Writer()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe failed: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg failed to start: %w", err)
	}
	f.log.Debug("ffmpeg running", zap.Int("pid", cmd.Process.Pid), zap.Int("rate", int(rate)))

	stop := make(chan struct{})
	f.cmd = cmd
	f.stop = stop

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()

		err := writePCM(stdin, st, stop)
		stdin.Close()
		waitErr := cmd.Wait()

		select {
		case <-stop:
			return
		default:
		}
		if err != nil {
			f.log.Warn("ffmpeg output failed", zap.Error(err), zap.NamedError("exit", waitErr))
		}
		done()
	}()
	return nil
}

// Stop kills the process without signalling completion.
func (f *FFmpeg) Stop() {
	f.mu.Lock()
	if f.stop != nil {
		close(f.stop)
		f.stop = nil
	}
	if f.cmd != nil && f.cmd.Process != nil {
		f.cmd.Process.Kill()
		f.cmd = nil
	}
	f.mu.Unlock()

	f.wg.Wait()
}

// writePCM streams st to w as little-endian float32 frames until the stream
// ends, a write fails or stop is closed.
func writePCM(w io.Writer, st beep.Streamer, stop <-chan struct{}) error {
	samples := make([][2]float64, 512)
	out := make([]byte, len(samples)*8)

	for {
		select {
		case <-stop:
			return nil
		default:
		}

		n, ok := st.Stream(samples)
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint32(out[i*8:], math.Float32bits(float32(samples[i][0])))
			binary.LittleEndian.PutUint32(out[i*8+4:], math.Float32bits(float32(samples[i][1])))
		}
		if n > 0 {
			if _, err := w.Write(out[:n*8]); err != nil {
				return err
			}
		}
		if !ok {
			return nil
		}
	}
}
