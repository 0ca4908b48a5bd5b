package dashboard

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cragr/opsstatus-agent/internal/logging"
)

// mockSnapshotter implements Snapshotter for testing.
type mockSnapshotter struct {
	snapshotFn func(ctx context.Context) Snapshot
	calls      atomic.Int32
}

func (m *mockSnapshotter) Snapshot(ctx context.Context) Snapshot {
	m.calls.Add(1)
	if m.snapshotFn != nil {
		return m.snapshotFn(ctx)
	}
	return Snapshot{GeneratedAt: time.Now()}
}

func TestRefresher_RefreshStoresLatest(t *testing.T) {
	r := NewRefresher(&mockSnapshotter{}, 0, logging.Discard())

	if _, ok := r.Latest(); ok {
		t.Fatal("expected no snapshot before the first cycle")
	}

	snap, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if snap.CycleID == "" {
		t.Error("expected a cycle id")
	}
	latest, ok := r.Latest()
	if !ok || latest.CycleID != snap.CycleID {
		t.Errorf("Latest() = %+v, %v", latest, ok)
	}
}

func TestRefresher_NewCycleCancelsAndDiscardsStale(t *testing.T) {
	firstStarted := make(chan struct{})
	var firstCancelled atomic.Bool

	source := &mockSnapshotter{}
	source.snapshotFn = func(ctx context.Context) Snapshot {
		if source.calls.Load() == 1 {
			close(firstStarted)
			<-ctx.Done()
			firstCancelled.Store(true)
			// A slow upstream that still answers after cancellation.
			return Snapshot{Errors: map[string]string{"outages": "stale"}}
		}
		return Snapshot{}
	}

	r := NewRefresher(source, 0, logging.Discard())

	staleErr := make(chan error, 1)
	go func() {
		_, err := r.Refresh(context.Background())
		staleErr <- err
	}()
	<-firstStarted

	fresh, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("second Refresh() error = %v", err)
	}

	select {
	case err := <-staleErr:
		if !errors.Is(err, ErrSuperseded) {
			t.Errorf("first Refresh() error = %v, want ErrSuperseded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle was not cancelled")
	}
	if !firstCancelled.Load() {
		t.Error("expected the first cycle's context to be cancelled")
	}

	latest, ok := r.Latest()
	if !ok || latest.CycleID != fresh.CycleID {
		t.Errorf("Latest() = %+v, want cycle %s", latest, fresh.CycleID)
	}
	if len(latest.Errors) != 0 {
		t.Error("stale result overwrote the fresh snapshot")
	}
}

func TestRefresher_RefreshHonoursCallerContext(t *testing.T) {
	source := &mockSnapshotter{snapshotFn: func(ctx context.Context) Snapshot {
		<-ctx.Done()
		return Snapshot{}
	}}
	r := NewRefresher(source, 0, logging.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := r.Refresh(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded", err)
	}
	r.stop()
}

func TestRefresher_RunTicks(t *testing.T) {
	source := &mockSnapshotter{}
	r := NewRefresher(source, 10*time.Millisecond, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for source.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d cycles ran", source.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if _, ok := r.Latest(); !ok {
		t.Error("expected a stored snapshot after several cycles")
	}
}

func TestRefresher_SlowCycleOutlivesInterval(t *testing.T) {
	var cancelled atomic.Int32
	source := &mockSnapshotter{snapshotFn: func(ctx context.Context) Snapshot {
		select {
		case <-time.After(60 * time.Millisecond):
		case <-ctx.Done():
			cancelled.Add(1)
		}
		return Snapshot{}
	}}
	r := NewRefresher(source, 10*time.Millisecond, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := r.Latest(); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("no snapshot stored after %d cycles", source.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	if got := cancelled.Load(); got != 0 {
		t.Errorf("%d cycles were cancelled by periodic ticks", got)
	}
	cancel()
	<-done
}

func TestRefresher_TriggerStillSupersedesPeriodicCycle(t *testing.T) {
	release := make(chan struct{})
	source := &mockSnapshotter{}
	source.snapshotFn = func(ctx context.Context) Snapshot {
		if source.calls.Load() == 1 {
			select {
			case <-release:
			case <-ctx.Done():
			}
		}
		return Snapshot{}
	}
	r := NewRefresher(source, time.Hour, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	for source.calls.Load() < 1 {
		time.Sleep(time.Millisecond)
	}
	snap, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	close(release)

	latest, ok := r.Latest()
	if !ok || latest.CycleID != snap.CycleID {
		t.Errorf("Latest() = %+v, want cycle %s", latest, snap.CycleID)
	}
}
