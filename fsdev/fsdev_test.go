package fsdev

import (
	"context"
	"errors"
	"testing"

	"github.com/kvaster/nvmetcp/api"
)

func TestUnimplementedReturnsErrNotSupported(t *testing.T) {
	var f Fsdev = Unimplemented{}
	ctx := context.Background()

	if _, _, err := f.Lookup(ctx, 1, "foo"); !errors.Is(err, api.ErrNotSupported) {
		t.Fatalf("Lookup: got %v, want ErrNotSupported", err)
	}
	if _, err := f.GetAttr(ctx, 1, 1); !errors.Is(err, api.ErrNotSupported) {
		t.Fatalf("GetAttr: got %v, want ErrNotSupported", err)
	}
	if _, err := f.Read(ctx, 1, 1, 0, nil); !errors.Is(err, api.ErrNotSupported) {
		t.Fatalf("Read: got %v, want ErrNotSupported", err)
	}
	if _, err := f.Write(ctx, 1, 1, 0, nil); !errors.Is(err, api.ErrNotSupported) {
		t.Fatalf("Write: got %v, want ErrNotSupported", err)
	}
	if err := f.SetXAttr(ctx, 1, "user.x", nil, 0); !errors.Is(err, api.ErrNotSupported) {
		t.Fatalf("SetXAttr: got %v, want ErrNotSupported", err)
	}
	if err := f.Flock(ctx, 1, 1, 0); !errors.Is(err, api.ErrNotSupported) {
		t.Fatalf("Flock: got %v, want ErrNotSupported", err)
	}
	if _, err := f.Statfs(ctx, 1); !errors.Is(err, api.ErrNotSupported) {
		t.Fatalf("Statfs: got %v, want ErrNotSupported", err)
	}
	if err := f.Abort(ctx, 42); !errors.Is(err, api.ErrNotSupported) {
		t.Fatalf("Abort: got %v, want ErrNotSupported", err)
	}
}
