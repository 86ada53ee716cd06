// ABOUTME: Tests for metric helpers
// ABOUTME: Reads gauge and counter values with testutil
package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetPlayerState(t *testing.T) {
	before := testutil.ToFloat64(PlayerStateTransitions.WithLabelValues("playing"))

	SetPlayerState("connecting")
	SetPlayerState("playing")

	if v := testutil.ToFloat64(PlayerState.WithLabelValues("playing")); v != 1 {
		t.Errorf("expected playing gauge 1, got %v", v)
	}
	if v := testutil.ToFloat64(PlayerState.WithLabelValues("connecting")); v != 0 {
		t.Errorf("expected connecting gauge 0, got %v", v)
	}
	if v := testutil.ToFloat64(PlayerStateTransitions.WithLabelValues("playing")); v != before+1 {
		t.Errorf("expected one more playing transition, got %v", v-before)
	}
}
