package lru

import (
	"context"
	"sync"
	"testing"

	"github.com/bobg/blobdb"
	"github.com/bobg/blobdb/backend/mem"
	"github.com/bobg/blobdb/testutil"
)

func TestConformance(t *testing.T) {
	b, err := New(mem.New(0), 4)
	if err != nil {
		t.Fatal(err)
	}
	testutil.Conformance(context.Background(), t, b)
}

func TestCaching(t *testing.T) {
	ctx := context.Background()

	nested := mem.New(0)
	b, err := New(nested, 4)
	if err != nil {
		t.Fatal(err)
	}

	var (
		cached = blobdb.Open(b, "db", "store")
		direct = blobdb.Open(nested, "db", "store")
	)

	testutil.Set(ctx, t, cached, "a", "one")
	if got := testutil.Get(ctx, t, cached, "a"); got != "one" {
		t.Fatalf("got %q, want %q", got, "one")
	}
	if b.c.Len() != 1 {
		t.Errorf("got %d cached entries, want 1", b.c.Len())
	}

	// A change behind the cache's back is not seen.
	testutil.Set(ctx, t, direct, "a", "two")
	if got := testutil.Get(ctx, t, cached, "a"); got != "one" {
		t.Errorf("got %q, want cached %q", got, "one")
	}

	// A write through the cache evicts.
	testutil.Set(ctx, t, cached, "a", "3")
	if got := testutil.Get(ctx, t, cached, "a"); got != "3wo" {
		t.Errorf("got %q, want %q", got, "3wo")
	}

	if err = cached.RenameData(ctx, "a", "b"); err != nil {
		t.Fatal(err)
	}
	if ok, err := cached.HasData(ctx, "a", nil); err != nil {
		t.Fatal(err)
	} else if ok {
		t.Error("renamed entry still present")
	}
	if got := testutil.Get(ctx, t, cached, "b"); got != "3wo" {
		t.Errorf("got %q, want %q", got, "3wo")
	}

	if err = cached.DeleteEntireDB(ctx); err != nil {
		t.Fatal(err)
	}
	if b.c.Len() != 0 {
		t.Errorf("got %d cached entries after DeleteEntireDB, want 0", b.c.Len())
	}
}

func TestQuota(t *testing.T) {
	ctx := context.Background()

	b, err := New(mem.New(50), 4)
	if err != nil {
		t.Fatal(err)
	}
	testutil.Set(ctx, t, blobdb.Open(b, "db", "store"), "a", "abc")

	u, err := blobdb.Quota(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	if u.Usage != 3 || u.Quota != 50 {
		t.Errorf("got %+v, want usage 3 and quota 50", u)
	}
}

func TestWriteDuringRead(t *testing.T) {
	ctx := context.Background()

	nested := &pausingBackend{Backend: mem.New(0)}
	b, err := New(nested, 4)
	if err != nil {
		t.Fatal(err)
	}
	s := blobdb.Open(b, "db", "store")
	testutil.Set(ctx, t, s, "a", "old")

	paused, resume := nested.arm()

	type result struct {
		data string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		blob, _, err := s.GetData(ctx, "a", nil)
		if err != nil {
			done <- result{err: err}
			return
		}
		data, err := blobdb.ReadAll(blob)
		done <- result{data: string(data), err: err}
	}()

	// The reader has fetched "old" from the nested backend
	// but has not yet cached it.
	<-paused
	testutil.Set(ctx, t, s, "a", "new")
	close(resume)

	res := <-done
	if res.err != nil {
		t.Fatal(res.err)
	}
	if res.data != "old" {
		t.Errorf("concurrent read got %q, want %q", res.data, "old")
	}

	if got := testutil.Get(ctx, t, s, "a"); got != "new" {
		t.Errorf("got %q after write, want %q", got, "new")
	}
}

// pausingBackend wraps a backend
// so that, once armed, the next entry read stops
// after fetching its content and before returning it.
type pausingBackend struct {
	blobdb.Backend

	mu             sync.Mutex
	paused, resume chan struct{}
}

func (b *pausingBackend) arm() (paused <-chan struct{}, resume chan<- struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paused, b.resume = make(chan struct{}), make(chan struct{})
	return b.paused, b.resume
}

// disarm returns the channels of an armed pause, clearing them.
func (b *pausingBackend) disarm() (paused, resume chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	paused, resume = b.paused, b.resume
	b.paused, b.resume = nil, nil
	return paused, resume
}

func (b *pausingBackend) OpenRoot(ctx context.Context) (blobdb.Container, error) {
	root, err := b.Backend.OpenRoot(ctx)
	if err != nil {
		return nil, err
	}
	return &pausingContainer{Container: root, b: b}, nil
}

type pausingContainer struct {
	blobdb.Container
	b *pausingBackend
}

func (c *pausingContainer) OpenChild(ctx context.Context, name string, create bool) (blobdb.Container, error) {
	child, err := c.Container.OpenChild(ctx, name, create)
	if err != nil {
		return nil, err
	}
	return &pausingContainer{Container: child, b: c.b}, nil
}

func (c *pausingContainer) OpenEntry(ctx context.Context, name string, flags blobdb.EntryFlags) (blobdb.Entry, error) {
	e, err := c.Container.OpenEntry(ctx, name, flags)
	if err != nil {
		return nil, err
	}
	return &pausingEntry{Entry: e, b: c.b}, nil
}

type pausingEntry struct {
	blobdb.Entry
	b *pausingBackend
}

func (e *pausingEntry) ReadContent(ctx context.Context) (blobdb.Blob, error) {
	blob, err := e.Entry.ReadContent(ctx)
	if err != nil {
		return nil, err
	}
	data, err := blobdb.ReadAll(blob)
	if err != nil {
		return nil, err
	}
	if paused, resume := e.b.disarm(); paused != nil {
		close(paused)
		<-resume
	}
	return data, nil
}
