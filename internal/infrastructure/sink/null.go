// ABOUTME: Output that discards samples, optionally paced to the sample clock
// ABOUTME: Used for headless hosts and for exercising the pipeline in tests
package sink

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
)

// nullTick is how much audio a realtime null sink consumes per tick.
const nullTick = 20 * time.Millisecond

type Null struct {
	realtime bool

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewNull returns a discarding sink. With realtime false it drains the
// stream as fast as the decoder allows.
func NewNull(realtime bool) *Null {
	return &Null{realtime: realtime}
}

func (n *Null) Name() string {
	return "null"
}

func (n *Null) Start(rate beep.SampleRate, st beep.Streamer, done func()) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	stop := make(chan struct{})
	n.stop = stop

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		buf := make([][2]float64, max(rate.N(nullTick), 1))

		var tick <-chan time.Time
		if n.realtime {
			ticker := time.NewTicker(nullTick)
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			if tick != nil {
				select {
				case <-stop:
					return
				case <-tick:
				}
			} else {
				select {
				case <-stop:
					return
				default:
				}
			}

			if _, ok := st.Stream(buf); !ok {
				done()
				return
			}
		}
	}()
	return nil
}

func (n *Null) Stop() {
	n.mu.Lock()
	if n.stop != nil {
		close(n.stop)
		n.stop = nil
	}
	n.mu.Unlock()

	n.wg.Wait()
}
