// ABOUTME: Player states and the state+payload change record sent to observers
// ABOUTME: Also formats playback times for status output
package player

import "fmt"

type State int

const (
	Stopped State = iota
	Connecting
	Buffering
	Playing
	Recording
	Error
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Connecting:
		return "connecting"
	case Buffering:
		return "buffering"
	case Playing:
		return "playing"
	case Recording:
		return "recording"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText lets State render as its name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// active reports whether a stream is in flight.
func (s State) active() bool {
	switch s {
	case Connecting, Buffering, Playing, Recording:
		return true
	}
	return false
}

// StateChange pairs a state with its payload: the candidate URI while
// Connecting, the fill fraction while Buffering and the message in Error.
type StateChange struct {
	State   State `json:"state"`
	Payload any   `json:"payload,omitempty"`
}

// FormatTime renders whole seconds as m:ss, or h:mm:ss past an hour.
func FormatTime(secs int) string {
	if secs < 0 {
		secs = 0
	}
	h, m, s := secs/3600, secs/60%60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
