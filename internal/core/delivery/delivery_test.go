package delivery

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gowvp/edgecam/internal/core/credential"
	"github.com/jonboulle/clockwork"
)

type fakeStore struct {
	putErrs  []error
	headErr  error
	puts     int
	bodies   []string
	lastMeta map[string]string
	lastKey  string
}

func (s *fakeStore) Put(_ context.Context, _, key string, body io.ReadSeeker, _ int64, meta map[string]string) error {
	s.puts++
	b, _ := io.ReadAll(body)
	s.bodies = append(s.bodies, string(b))
	s.lastMeta, s.lastKey = meta, key
	if len(s.putErrs) >= s.puts {
		return s.putErrs[s.puts-1]
	}
	return nil
}

func (s *fakeStore) Head(context.Context, string) error {
	return s.headErr
}

type countingBroker struct {
	clock clockwork.Clock
	calls int
}

func (b *countingBroker) Assume(_ context.Context, _, _ string, d time.Duration) (credential.Lease, error) {
	b.calls++
	return credential.Lease{AccessKeyID: "AK", SessionToken: time.Duration(b.calls).String(), Expiry: b.clock.Now().Add(d)}, nil
}

type harness struct {
	clock    *clockwork.FakeClock
	store    *fakeStore
	broker   *countingBroker
	builds   int
	artifact string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 4, 5, 6, 7, 0, time.Local))
	h := harness{clock: clock, store: &fakeStore{}, broker: &countingBroker{clock: clock}}
	h.artifact = filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(h.artifact, []byte("video-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return &h
}

func (h *harness) factory(context.Context, credential.Lease) (ObjectStore, error) {
	h.builds++
	return h.store, nil
}

func (h *harness) client(t *testing.T, provider credential.Provider) *Client {
	t.Helper()
	m := credential.NewManager(provider, credential.WithClock(h.clock))
	c, err := NewClient(context.Background(), Config{Bucket: "b", KeyPrefix: "motion_detections"}, m, h.factory, WithClock(h.clock))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func (h *harness) assumeRole() credential.Provider {
	return credential.AssumeRole{Broker: h.broker, RoleARN: "arn:role", SessionName: "s", Duration: time.Hour}
}

func TestUploadSuccess(t *testing.T) {
	h := newHarness(t)
	c := h.client(t, h.assumeRole())

	rec, err := c.Upload(context.Background(), h.artifact, "", map[string]any{"type": "motion_clip", "motion_score": 1234, "duration": 30.5})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Outcome != OutcomeSuccess || rec.Attempts != 1 {
		t.Fatalf("record = %+v", rec)
	}
	if h.store.lastKey != "motion_detections/20240304_050607.mp4" {
		t.Fatalf("key = %s", h.store.lastKey)
	}
	if h.store.lastMeta["motion_score"] != "1234" || h.store.lastMeta["duration"] != "30.5" {
		t.Fatalf("meta = %v", h.store.lastMeta)
	}
}

func TestUploadRetriesOnceOnExpiredCredential(t *testing.T) {
	h := newHarness(t)
	h.store.putErrs = []error{ErrCredentialExpired}
	c := h.client(t, h.assumeRole())

	rec, err := c.Upload(context.Background(), h.artifact, "k", nil)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Attempts != 2 || h.store.puts != 2 || h.broker.calls != 2 || h.builds != 2 {
		t.Fatalf("attempts = %d puts = %d assumes = %d builds = %d", rec.Attempts, h.store.puts, h.broker.calls, h.builds)
	}
	if h.store.bodies[1] != "video-bytes" {
		t.Fatalf("retry body = %q", h.store.bodies[1])
	}
}

func TestUploadSecondExpiryIsFatal(t *testing.T) {
	h := newHarness(t)
	h.store.putErrs = []error{ErrCredentialExpired, ErrCredentialExpired}
	c := h.client(t, h.assumeRole())

	rec, err := c.Upload(context.Background(), h.artifact, "k", nil)
	if !errors.Is(err, ErrCredentialExpired) {
		t.Fatalf("err = %v", err)
	}
	if rec.Attempts != 2 || h.store.puts != 2 || rec.Outcome != OutcomeFailed {
		t.Fatalf("record = %+v puts = %d", rec, h.store.puts)
	}
}

func TestUploadOtherErrorNoRetry(t *testing.T) {
	h := newHarness(t)
	h.store.putErrs = []error{errors.New("access denied")}
	c := h.client(t, h.assumeRole())

	rec, err := c.Upload(context.Background(), h.artifact, "k", nil)
	if err == nil || rec.Attempts != 1 || h.broker.calls != 1 {
		t.Fatalf("err = %v attempts = %d assumes = %d", err, rec.Attempts, h.broker.calls)
	}
}

func TestUploadStaticCredentialNoRetry(t *testing.T) {
	h := newHarness(t)
	h.store.putErrs = []error{ErrCredentialExpired}
	c := h.client(t, credential.Static{Lease: credential.Lease{AccessKeyID: "AK"}})

	rec, err := c.Upload(context.Background(), h.artifact, "k", nil)
	if !errors.Is(err, ErrCredentialExpired) || rec.Attempts != 1 {
		t.Fatalf("err = %v attempts = %d", err, rec.Attempts)
	}
}

func TestUploadProactiveRefresh(t *testing.T) {
	h := newHarness(t)
	c := h.client(t, h.assumeRole())
	h.clock.Advance(56 * time.Minute)

	if _, err := c.Upload(context.Background(), h.artifact, "k", nil); err != nil {
		t.Fatal(err)
	}
	if h.broker.calls != 2 || h.builds != 2 || h.store.puts != 1 {
		t.Fatalf("assumes = %d builds = %d puts = %d", h.broker.calls, h.builds, h.store.puts)
	}
}

func TestHeadFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.store.headErr = errors.New("no such bucket")
	c := h.client(t, h.assumeRole())
	if _, err := c.Upload(context.Background(), h.artifact, "k", nil); err != nil {
		t.Fatal(err)
	}
}

func TestUploadMissingFile(t *testing.T) {
	h := newHarness(t)
	c := h.client(t, h.assumeRole())
	if _, err := c.Upload(context.Background(), filepath.Join(t.TempDir(), "none.mp4"), "k", nil); err == nil {
		t.Fatal("expected error")
	}
	if h.store.puts != 0 {
		t.Fatalf("puts = %d", h.store.puts)
	}
}

func TestStringify(t *testing.T) {
	got := Stringify(map[string]any{
		"a": "x", "b": 1.5, "c": 3, "d": true, "e": []string{"cat", "dog"}, "f": map[string]int{"n": 1},
	})
	want := map[string]string{"a": "x", "b": "1.5", "c": "3", "d": "true", "e": "cat,dog", "f": `{"n":1}`}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}
