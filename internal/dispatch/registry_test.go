package dispatch

import (
	"context"
	"reflect"
	"testing"

	"github.com/shaiso/nephele/internal/mq"
)

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	noop := func(ctx context.Context, d *mq.Delivery) error { return nil }

	if _, ok := r.Resolve("missing"); ok {
		t.Error("empty registry must not resolve anything")
	}

	r.Register("instance_event", noop)
	if _, ok := r.Resolve("instance_event"); !ok {
		t.Error("registered handler not resolved")
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry()
	noop := func(ctx context.Context, d *mq.Delivery) error { return nil }
	r.Register("notify_email", noop)
	r.Register("discard", noop)
	r.Register("instance_event", noop)

	want := []string{"discard", "instance_event", "notify_email"}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestRegistryReRegisterOverwrites(t *testing.T) {
	r := NewRegistry()
	calls := 0
	r.Register("h", func(ctx context.Context, d *mq.Delivery) error { calls += 1; return nil })
	r.Register("h", func(ctx context.Context, d *mq.Delivery) error { calls += 10; return nil })

	h, ok := r.Resolve("h")
	if !ok {
		t.Fatal("handler not resolved")
	}
	if err := h(context.Background(), &mq.Delivery{}); err != nil {
		t.Fatal(err)
	}
	if calls != 10 {
		t.Errorf("calls = %d, want 10 (last registration wins)", calls)
	}
}
