package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type fakeBroker struct {
	clock clockwork.Clock
	calls int
	err   error
}

func (b *fakeBroker) Assume(_ context.Context, role, session string, d time.Duration) (Lease, error) {
	b.calls++
	if b.err != nil {
		return Lease{}, b.err
	}
	return Lease{
		AccessKeyID:  role,
		SessionToken: session,
		Expiry:       b.clock.Now().Add(d),
	}, nil
}

func TestManagerProactiveRefresh(t *testing.T) {
	clock := clockwork.NewFakeClock()
	broker := &fakeBroker{clock: clock}
	m := NewManager(AssumeRole{Broker: broker, RoleARN: "arn:role", SessionName: "s", Duration: time.Hour}, WithClock(clock))

	if m.State() != StateUninitialized {
		t.Fatalf("state = %s", m.State())
	}
	if _, err := m.Current(context.Background()); err != nil {
		t.Fatal(err)
	}
	if m.State() != StateActive || broker.calls != 1 {
		t.Fatalf("state = %s calls = %d", m.State(), broker.calls)
	}

	clock.Advance(50 * time.Minute)
	if _, err := m.Current(context.Background()); err != nil {
		t.Fatal(err)
	}
	if broker.calls != 1 {
		t.Fatalf("refreshed too early, calls = %d", broker.calls)
	}

	clock.Advance(6 * time.Minute)
	lease, err := m.Current(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if broker.calls != 2 || lease.Remaining(clock.Now()) != time.Hour {
		t.Fatalf("calls = %d remaining = %s", broker.calls, lease.Remaining(clock.Now()))
	}
}

func TestManagerRefreshFailureKeepsLease(t *testing.T) {
	clock := clockwork.NewFakeClock()
	broker := &fakeBroker{clock: clock}
	m := NewManager(AssumeRole{Broker: broker, RoleARN: "arn:role"}, WithClock(clock))
	first, err := m.Current(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	broker.err = errors.New("sts unavailable")
	if _, err := m.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if m.State() != StateActive {
		t.Fatalf("state = %s", m.State())
	}
	got, err := m.Current(context.Background())
	if err != nil || got != first {
		t.Fatalf("lease changed after failed refresh: %v %v", got, err)
	}
}

func TestManagerUninitializedFailure(t *testing.T) {
	broker := &fakeBroker{clock: clockwork.NewFakeClock(), err: errors.New("denied")}
	m := NewManager(AssumeRole{Broker: broker, RoleARN: "arn:role"})
	if _, err := m.Current(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if m.State() != StateUninitialized {
		t.Fatalf("state = %s", m.State())
	}
}

func TestStaticNeverExpires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewManager(Static{Lease: Lease{AccessKeyID: "AK", Expiry: clock.Now()}}, WithClock(clock))
	lease, err := m.Current(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if lease.CanExpire() || m.Renewable() {
		t.Fatalf("static lease must not expire: %+v", lease)
	}
	clock.Advance(365 * 24 * time.Hour)
	if _, err := m.Current(context.Background()); err != nil {
		t.Fatal(err)
	}
}
