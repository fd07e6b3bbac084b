package affinity

import (
	"errors"
	"runtime"
	"testing"

	"github.com/kvaster/nvmetcp/api"
)

func TestPinBindsToCPUZero(t *testing.T) {
	a := New()
	err := a.Pin(0, -1)
	if errors.Is(err, api.ErrNotSupported) {
		t.Skipf("affinity not supported on %s", runtime.GOOS)
	}
	if err != nil {
		t.Fatalf("Pin: %v", err)
	}
	if err := a.Unpin(); err != nil {
		t.Fatalf("Unpin: %v", err)
	}
}

func TestPinInvalidCPURejected(t *testing.T) {
	a := New()
	err := a.Pin(1<<20, -1)
	if err == nil {
		t.Fatalf("expected an error pinning to an out-of-range CPU")
	}
}
