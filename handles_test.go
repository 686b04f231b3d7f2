package blobdb

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeContainer struct {
	Container
	id int32
}

func TestResolveOnce(t *testing.T) {
	var (
		ctx   = context.Background()
		c     handleCache
		calls int32
		gate  = make(chan struct{})
	)

	open := func(context.Context) (Container, error) {
		n := atomic.AddInt32(&calls, 1)
		<-gate
		return &fakeContainer{id: n}, nil
	}

	const n = 20

	var (
		wg      sync.WaitGroup
		results = make([]Container, n)
		errs    = make([]error, n)
	)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.resolve(ctx, "store", open)
		}()
	}

	time.Sleep(10 * time.Millisecond)
	close(gate)
	wg.Wait()

	if calls != 1 {
		t.Errorf("got %d open calls, want 1", calls)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatal(errs[i])
		}
		if results[i] != results[0] {
			t.Errorf("result %d differs from result 0", i)
		}
	}

	h, err := c.resolve(ctx, "store", open)
	if err != nil {
		t.Fatal(err)
	}
	if h != results[0] {
		t.Error("memoized handle not reused")
	}
	if calls != 1 {
		t.Errorf("got %d open calls after memoization, want 1", calls)
	}

	// Different keys resolve separately.
	if _, err = c.resolve(ctx, "other", open); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("got %d open calls, want 2", calls)
	}
}

func TestResolveFailureNotCached(t *testing.T) {
	var (
		ctx   = context.Background()
		c     handleCache
		calls int
		boom  = errors.New("boom")
	)

	open := func(context.Context) (Container, error) {
		calls++
		if calls == 1 {
			return nil, boom
		}
		return &fakeContainer{}, nil
	}

	_, err := c.resolve(ctx, "k", open)
	if !errors.Is(err, boom) {
		t.Fatalf("got error %v, want %v", err, boom)
	}
	h, err := c.resolve(ctx, "k", open)
	if err != nil {
		t.Fatal(err)
	}
	if h == nil {
		t.Fatal("got nil handle")
	}
	if calls != 2 {
		t.Errorf("got %d open calls, want 2", calls)
	}
}

func TestResolveFailureSharedByWaiters(t *testing.T) {
	var (
		ctx   = context.Background()
		c     handleCache
		calls int32
		fail  int32 = 1
		gate        = make(chan struct{})
		boom        = errors.New("boom")
	)

	open := func(context.Context) (Container, error) {
		atomic.AddInt32(&calls, 1)
		<-gate
		if atomic.LoadInt32(&fail) != 0 {
			return nil, boom
		}
		return &fakeContainer{}, nil
	}

	const n = 20

	var (
		ready, wg sync.WaitGroup
		results   = make([]Container, n)
		errs      = make([]error, n)
	)
	ready.Add(n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			ready.Done()
			results[i], errs[i] = c.resolve(ctx, "k", open)
		}()
	}

	ready.Wait()
	time.Sleep(10 * time.Millisecond)
	close(gate)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("got %d open calls, want 1", got)
	}
	for i := 0; i < n; i++ {
		if !errors.Is(errs[i], boom) {
			t.Errorf("caller %d got error %v, want %v", i, errs[i], boom)
		}
		if results[i] != nil {
			t.Errorf("caller %d got a handle alongside the error", i)
		}
	}

	// The shared failure is not remembered.
	atomic.StoreInt32(&fail, 0)
	h, err := c.resolve(ctx, "k", open)
	if err != nil {
		t.Fatal(err)
	}
	if h == nil {
		t.Fatal("got nil handle")
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("got %d open calls, want 2", got)
	}
}

func TestResolveReset(t *testing.T) {
	var (
		ctx   = context.Background()
		c     handleCache
		calls int32
	)

	open := func(context.Context) (Container, error) {
		return &fakeContainer{id: atomic.AddInt32(&calls, 1)}, nil
	}

	h1, err := c.resolve(ctx, "k", open)
	if err != nil {
		t.Fatal(err)
	}
	c.reset()
	h2, err := c.resolve(ctx, "k", open)
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("handle survived reset")
	}
	if calls != 2 {
		t.Errorf("got %d open calls, want 2", calls)
	}
}

func TestResolveResetDuringFlight(t *testing.T) {
	var (
		ctx     = context.Background()
		c       handleCache
		calls   int32
		gate    = make(chan struct{})
		started = make(chan struct{})
	)

	open := func(context.Context) (Container, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			close(started)
			<-gate
		}
		return &fakeContainer{id: n}, nil
	}

	done := make(chan error)
	go func() {
		_, err := c.resolve(ctx, "k", open)
		done <- err
	}()

	<-started
	c.reset()
	close(gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	h, err := c.resolve(ctx, "k", open)
	if err != nil {
		t.Fatal(err)
	}
	if got := h.(*fakeContainer).id; got != 2 {
		t.Errorf("got handle from open call %d, want 2", got)
	}
}

func TestResolveCanceledWaiter(t *testing.T) {
	var (
		c       handleCache
		calls   int32
		gate    = make(chan struct{})
		started = make(chan struct{})
		opened  = make(chan struct{})
	)

	open := func(octx context.Context) (Container, error) {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-gate
		defer close(opened)
		if err := octx.Err(); err != nil {
			return nil, err
		}
		return &fakeContainer{}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		_, err := c.resolve(ctx, "k", open)
		done <- err
	}()

	<-started
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("got error %v, want %v", err, context.Canceled)
	}

	// The open call carries on and its result is kept.
	close(gate)
	<-opened

	_, err := c.resolve(context.Background(), "k", open)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("got %d open calls, want 1", calls)
	}
}
