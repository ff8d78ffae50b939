package syncqueue

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
	err    error
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return r.err
}

func (r *sleepRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.delays)
}

func newService(t *testing.T, q Queue, d Dispatcher, m *Monitor, sleeper *sleepRecorder) *Service {
	t.Helper()
	svc, err := NewService(q, d, m, Config{MaxRetries: 3, ItemDelay: time.Second}, WithSleeper(sleeper.sleep))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func mustEnqueue(t *testing.T, s *Store, item Item) Item {
	t.Helper()
	out, err := s.Enqueue(context.Background(), item)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	return out
}

func pendingCount(t *testing.T, s *Store) int {
	t.Helper()
	items, err := s.Pending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return len(items)
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	m := NewMonitor(false, zerolog.Nop())
	ok := DispatcherFunc(func(context.Context, Item) error { return nil })
	if _, err := NewService(nil, ok, m, Config{}); err == nil {
		t.Fatal("expected error without queue")
	}
	if _, err := NewService(openMemStore(t), nil, m, Config{}); err == nil {
		t.Fatal("expected error without dispatcher")
	}
	if _, err := NewService(openMemStore(t), ok, nil, Config{}); err == nil {
		t.Fatal("expected error without monitor")
	}
}

func TestService_DrainsWhenBackOnline(t *testing.T) {
	rec, srv := newRecorder(t)
	store := openMemStore(t)
	monitor := NewMonitor(false, zerolog.Nop())
	sleeper := &sleepRecorder{}
	svc := newService(t, store, newDispatcher(t, srv.URL), monitor, sleeper)
	ctx := context.Background()

	queued := []struct {
		action Action
		typ    ResourceType
		key    string
	}{
		{ActionUpdate, TypeResident, "r-1"},
		{ActionCreate, TypeHousehold, "137404001-0001"},
		{ActionUpdate, TypeUser, "u-1"},
	}
	for _, q := range queued {
		if _, err := svc.AddToQueue(ctx, q.action, q.typ, q.key, map[string]string{"last_name": "Santos"}); err != nil {
			t.Fatalf("AddToQueue(%s %s) error = %v", q.action, q.typ, err)
		}
	}
	if n := len(rec.all()); n != 0 {
		t.Fatalf("dispatched %d items while offline", n)
	}

	monitor.Set(true)
	svc.Wait()

	var paths []string
	for _, r := range rec.all() {
		paths = append(paths, r.method+" "+r.path)
		if r.body != `{"last_name":"Santos"}` {
			t.Errorf("body = %q", r.body)
		}
	}
	want := []string{"PUT /api/residents/r-1", "POST /api/households", "PUT /api/auth/profile"}
	if !reflect.DeepEqual(paths, want) {
		t.Fatalf("requests = %v, want %v", paths, want)
	}
	if sleeper.count() != 2 {
		t.Fatalf("sleeps = %d, want 2", sleeper.count())
	}
	for _, d := range sleeper.delays {
		if d != time.Second {
			t.Fatalf("delay = %v, want 1s", d)
		}
	}
	if pendingCount(t, store) != 0 {
		t.Fatal("queue not empty after drain")
	}
}

func TestService_AddToQueueOnlineStartsRun(t *testing.T) {
	var calls atomic.Int32
	store := openMemStore(t)
	svc := newService(t, store, DispatcherFunc(func(context.Context, Item) error {
		calls.Add(1)
		return nil
	}), NewMonitor(true, zerolog.Nop()), &sleepRecorder{})

	if _, err := svc.AddToQueue(context.Background(), ActionCreate, TypeUser, "", nil); err != nil {
		t.Fatal(err)
	}
	svc.Wait()

	if calls.Load() != 1 || pendingCount(t, store) != 0 {
		t.Fatalf("calls = %d, pending = %d", calls.Load(), pendingCount(t, store))
	}
}

func TestService_AddToQueueRejectsInvalid(t *testing.T) {
	svc := newService(t, openMemStore(t), DispatcherFunc(func(context.Context, Item) error { return nil }), NewMonitor(false, zerolog.Nop()), &sleepRecorder{})

	_, err := svc.AddToQueue(context.Background(), ActionDelete, TypeHousehold, "", nil)
	if !errors.Is(err, ErrInvalidItem) {
		t.Fatalf("AddToQueue() error = %v, want ErrInvalidItem", err)
	}
}

func TestService_SingleFlight(t *testing.T) {
	store := openMemStore(t)
	mustEnqueue(t, store, residentItem("r-1"))

	started := make(chan struct{})
	release := make(chan struct{})
	svc := newService(t, store, DispatcherFunc(func(context.Context, Item) error {
		close(started)
		<-release
		return nil
	}), NewMonitor(true, zerolog.Nop()), &sleepRecorder{})

	first := make(chan Report, 1)
	go func() {
		report, _ := svc.ProcessQueue(context.Background())
		first <- report
	}()
	<-started

	if !svc.Processing() {
		t.Fatal("Processing() = false during a run")
	}
	second, err := svc.ProcessQueue(context.Background())
	if err != nil || !second.Skipped {
		t.Fatalf("concurrent ProcessQueue() = %+v, %v, want skipped", second, err)
	}

	close(release)
	report := <-first
	if report.Skipped || report.Synced != 1 {
		t.Fatalf("first report = %+v", report)
	}
	if svc.Processing() {
		t.Fatal("Processing() = true after the run")
	}
}

func TestService_FailuresBecomeStuckThenRecover(t *testing.T) {
	var healthy atomic.Bool
	store := openMemStore(t)
	item := mustEnqueue(t, store, residentItem("r-1"))
	monitor := NewMonitor(true, zerolog.Nop())
	svc := newService(t, store, DispatcherFunc(func(context.Context, Item) error {
		if healthy.Load() {
			return nil
		}
		return &StatusError{StatusCode: 500, Body: "boom"}
	}), monitor, &sleepRecorder{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		report, err := svc.ProcessQueue(ctx)
		if err != nil || report.Failed != 1 {
			t.Fatalf("run %d = %+v, %v", i, report, err)
		}
	}
	report, _ := svc.ProcessQueue(ctx)
	if report.Failed != 0 || report.Synced != 0 {
		t.Fatalf("stuck item was dispatched again: %+v", report)
	}

	stuck, err := svc.Stuck(ctx)
	if err != nil || len(stuck) != 1 || stuck[0].ID != item.ID {
		t.Fatalf("Stuck() = %+v, %v", stuck, err)
	}
	if stuck[0].RetryCount != 3 || stuck[0].LastError == "" {
		t.Fatalf("stuck item = %+v", stuck[0])
	}
	st, _ := svc.Status(ctx)
	if st.Pending != 1 || st.Stuck != 1 || !st.Online || st.Oldest.IsZero() {
		t.Fatalf("Status() = %+v", st)
	}

	monitor.Set(false)
	healthy.Store(true)
	reset, err := svc.Retry(ctx, item.ID)
	if err != nil || reset.RetryCount != 0 {
		t.Fatalf("Retry() = %+v, %v", reset, err)
	}
	report, _ = svc.ProcessQueue(ctx)
	if !report.StoppedOffline {
		t.Fatalf("offline run = %+v", report)
	}

	monitor.Set(true)
	svc.Wait()
	if pendingCount(t, store) != 0 {
		t.Fatal("item not delivered after retry")
	}
}

func TestService_StopsWhenConnectivityDrops(t *testing.T) {
	store := openMemStore(t)
	for _, key := range []string{"r-1", "r-2", "r-3"} {
		mustEnqueue(t, store, residentItem(key))
	}
	monitor := NewMonitor(true, zerolog.Nop())
	svc := newService(t, store, DispatcherFunc(func(context.Context, Item) error {
		monitor.Set(false)
		return nil
	}), monitor, &sleepRecorder{})

	report, err := svc.ProcessQueue(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !report.StoppedOffline || report.Synced != 1 {
		t.Fatalf("report = %+v", report)
	}
	if pendingCount(t, store) != 2 {
		t.Fatalf("pending = %d, want 2", pendingCount(t, store))
	}
}

func TestService_PicksUpItemsQueuedDuringRun(t *testing.T) {
	store := openMemStore(t)
	mustEnqueue(t, store, residentItem("r-1"))

	var mu sync.Mutex
	var seen []string
	svc := newService(t, store, DispatcherFunc(func(ctx context.Context, item Item) error {
		mu.Lock()
		seen = append(seen, item.ResourceKey)
		first := len(seen) == 1
		mu.Unlock()
		if first {
			mustEnqueue(t, store, residentItem("r-2"))
		}
		return nil
	}), NewMonitor(true, zerolog.Nop()), &sleepRecorder{})

	report, err := svc.ProcessQueue(context.Background())
	if err != nil || report.Synced != 2 {
		t.Fatalf("report = %+v, %v", report, err)
	}
	if !reflect.DeepEqual(seen, []string{"r-1", "r-2"}) {
		t.Fatalf("dispatched = %v", seen)
	}
}

func TestService_SleepErrorEndsRun(t *testing.T) {
	store := openMemStore(t)
	mustEnqueue(t, store, residentItem("r-1"))
	mustEnqueue(t, store, residentItem("r-2"))
	sleeper := &sleepRecorder{err: context.Canceled}
	svc := newService(t, store, DispatcherFunc(func(context.Context, Item) error { return nil }), NewMonitor(true, zerolog.Nop()), sleeper)

	report, err := svc.ProcessQueue(context.Background())
	if !errors.Is(err, context.Canceled) || report.Synced != 1 {
		t.Fatalf("ProcessQueue() = %+v, %v", report, err)
	}
	if pendingCount(t, store) != 1 {
		t.Fatal("second item should remain queued")
	}
}

func TestService_Discard(t *testing.T) {
	store := openMemStore(t)
	item := mustEnqueue(t, store, residentItem("r-1"))
	svc := newService(t, store, DispatcherFunc(func(context.Context, Item) error { return nil }), NewMonitor(false, zerolog.Nop()), &sleepRecorder{})

	if err := svc.Discard(context.Background(), item.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.Discard(context.Background(), item.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Discard() error = %v, want ErrNotFound", err)
	}
}

// raceQueue enqueues through the service right after the run's second
// Pending read, so the run sees a stale empty list.
type raceQueue struct {
	*Store
	calls   int
	onRead2 func()
}

func (q *raceQueue) Pending(ctx context.Context) ([]Item, error) {
	items, err := q.Store.Pending(ctx)
	q.calls++
	if q.calls == 2 && q.onRead2 != nil {
		q.onRead2()
	}
	return items, err
}

func TestService_ItemQueuedAfterFinalReadStartsNewRun(t *testing.T) {
	store := openMemStore(t)
	mustEnqueue(t, store, residentItem("r-1"))
	q := &raceQueue{Store: store}

	var calls atomic.Int32
	svc := newService(t, q, DispatcherFunc(func(context.Context, Item) error {
		calls.Add(1)
		return nil
	}), NewMonitor(true, zerolog.Nop()), &sleepRecorder{})
	q.onRead2 = func() {
		if _, err := svc.AddToQueue(context.Background(), ActionUpdate, TypeResident, "r-2", nil); err != nil {
			t.Errorf("AddToQueue() error = %v", err)
		}
	}

	report, err := svc.ProcessQueue(context.Background())
	if err != nil || report.Synced != 1 {
		t.Fatalf("report = %+v, %v", report, err)
	}
	svc.Wait()

	if calls.Load() != 2 || pendingCount(t, store) != 0 {
		t.Fatalf("dispatched %d, pending %d", calls.Load(), pendingCount(t, store))
	}
}
