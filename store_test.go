package blobdb_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/blobdb"
	"github.com/bobg/blobdb/backend/mem"
)

// countingBackend counts container opens and can fail the first OpenRoot calls.
type countingBackend struct {
	blobdb.Backend

	roots, children int32
	failRoots       int32
	gate            chan struct{}
}

func (b *countingBackend) OpenRoot(ctx context.Context) (blobdb.Container, error) {
	if atomic.AddInt32(&b.roots, 1) <= atomic.LoadInt32(&b.failRoots) {
		return nil, errRoot
	}
	root, err := b.Backend.OpenRoot(ctx)
	if err != nil {
		return nil, err
	}
	return &countingContainer{Container: root, b: b}, nil
}

var errRoot = errors.New("root unavailable")

type countingContainer struct {
	blobdb.Container
	b *countingBackend
}

func (c *countingContainer) OpenChild(ctx context.Context, name string, create bool) (blobdb.Container, error) {
	atomic.AddInt32(&c.b.children, 1)
	if c.b.gate != nil {
		<-c.b.gate
	}
	child, err := c.Container.OpenChild(ctx, name, create)
	if err != nil {
		return nil, err
	}
	return &countingContainer{Container: child, b: c.b}, nil
}

func TestConcurrentFirstUse(t *testing.T) {
	var (
		ctx = context.Background()
		b   = &countingBackend{Backend: mem.New(0), gate: make(chan struct{})}
		s   = blobdb.Open(b, "db", "store")
	)

	const n = 16

	var (
		wg    sync.WaitGroup
		ready sync.WaitGroup
		errs  = make([]error, n)
	)
	ready.Add(n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			ready.Done()
			_, errs[i] = s.HasData(ctx, "x", nil)
		}()
	}
	ready.Wait()
	close(b.gate)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	// One for the database, one for the store.
	if b.children != 2 {
		t.Errorf("got %d container opens, want 2", b.children)
	}

	// Another store in the same database opens only its own container.
	other := s.DB().Store("other")
	if _, err := other.HasData(ctx, "x", nil); err != nil {
		t.Fatal(err)
	}
	if b.children != 3 {
		t.Errorf("got %d container opens, want 3", b.children)
	}
}

func TestFailedOpenRetried(t *testing.T) {
	var (
		ctx = context.Background()
		b   = &countingBackend{Backend: mem.New(0), failRoots: 1}
		s   = blobdb.Open(b, "db", "store")
	)

	err := s.SetData(ctx, blobdb.Bytes("x"), "a", nil)
	if !errors.Is(err, errRoot) {
		t.Fatalf("got error %v, want %v", err, errRoot)
	}

	err = s.SetData(ctx, blobdb.Bytes("x"), "a", nil)
	if err != nil {
		t.Fatal(err)
	}
	if b.roots != 2 {
		t.Errorf("got %d root opens, want 2", b.roots)
	}
}

// unusableBackend fails the test if it is ever called.
type unusableBackend struct {
	t *testing.T
}

func (b unusableBackend) OpenRoot(context.Context) (blobdb.Container, error) {
	b.t.Error("backend called")
	return nil, errors.New("unusable")
}

func TestInvalidArguments(t *testing.T) {
	var (
		ctx = context.Background()
		s   = blobdb.Open(unusableBackend{t: t}, "db", "store")
	)

	cases := []struct {
		name string
		f    func() error
	}{
		{"CreateData", func() error { return s.CreateData(ctx, blobdb.Bytes("x"), "", nil) }},
		{"SetData", func() error { return s.SetData(ctx, blobdb.Bytes("x"), "", &blobdb.Options{}) }},
		{"AppendData", func() error { return s.AppendData(ctx, blobdb.Bytes("x"), "", nil) }},
		{"NegativeOffset", func() error { return s.SetData(ctx, blobdb.Bytes("x"), "a", &blobdb.Options{Offset: -1}) }},
		{"GetData", func() error { _, _, err := s.GetData(ctx, "", nil); return err }},
		{"HasData", func() error { _, err := s.HasData(ctx, "", nil); return err }},
		{"DeleteData", func() error { _, err := s.DeleteData(ctx, "", nil); return err }},
		{"GetFileURL", func() error { _, _, err := s.GetFileURL(ctx, "", nil); return err }},
		{"RenameFrom", func() error { return s.RenameData(ctx, "", "b") }},
		{"RenameTo", func() error { return s.RenameData(ctx, "a", "") }},
		{"CreateWriteStream", func() error { _, err := s.CreateWriteStream(ctx, "", nil); return err }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.f(); !errors.Is(err, blobdb.ErrInvalidArgument) {
				t.Errorf("got error %v, want %v", err, blobdb.ErrInvalidArgument)
			}
		})
	}
}

func TestMutableBlob(t *testing.T) {
	var (
		ctx     = context.Background()
		db      = blobdb.New(mem.New(0), "db")
		copying = db.Store("store")
		live    = db.Store("store", blobdb.WithMutableBlob())
	)

	if err := copying.SetData(ctx, blobdb.Bytes("before"), "a", nil); err != nil {
		t.Fatal(err)
	}

	snap, ok, err := copying.GetData(ctx, "a", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("entry not found")
	}
	view, ok, err := live.GetData(ctx, "a", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("entry not found")
	}

	err = copying.SetData(ctx, blobdb.Bytes("after, longer"), "a", &blobdb.Options{Truncate: true})
	if err != nil {
		t.Fatal(err)
	}

	if got := readBlob(t, snap); got != "before" {
		t.Errorf("snapshot: got %q, want %q", got, "before")
	}
	if got := readBlob(t, view); got != "after, longer" {
		t.Errorf("live view: got %q, want %q", got, "after, longer")
	}
	if got, want := view.Size(), int64(len("after, longer")); got != want {
		t.Errorf("live view: got size %d, want %d", got, want)
	}
}

func readBlob(t *testing.T, b blobdb.Blob) string {
	t.Helper()

	r, err := b.Open()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(got)
}

type unsupportedQuota struct {
	blobdb.Backend
}

func (unsupportedQuota) QuotaEstimate(context.Context) (int64, int64, error) {
	return 0, 0, errors.ErrUnsupported
}

func TestQuota(t *testing.T) {
	ctx := context.Background()

	got, err := blobdb.Quota(ctx, unusableBackend{t: t})
	if err != nil {
		t.Fatal(err)
	}
	if got != blobdb.Unknown {
		t.Errorf("got %+v, want %+v", got, blobdb.Unknown)
	}

	got, err = blobdb.Quota(ctx, unsupportedQuota{})
	if err != nil {
		t.Fatal(err)
	}
	if got != blobdb.Unknown {
		t.Errorf("got %+v, want %+v", got, blobdb.Unknown)
	}

	b := mem.New(100)
	s := blobdb.Open(b, "db", "store")
	if err = s.SetData(ctx, blobdb.Bytes("0123456789"), "a", nil); err != nil {
		t.Fatal(err)
	}
	got, err = blobdb.Quota(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(blobdb.Usage{Usage: 10, Quota: 100}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestStreamCopy(t *testing.T) {
	var (
		ctx = context.Background()
		s   = blobdb.Open(mem.New(0), "db", "store")
	)

	w, err := s.CreateWriteStream(ctx, "a", nil)
	if err != nil {
		t.Fatal(err)
	}
	buf := []byte("abc")
	if _, err = w.Write(buf); err != nil {
		t.Fatal(err)
	}
	copy(buf, "xyz")
	if err = w.Close(); err != nil {
		t.Fatal(err)
	}
	if err = w.Close(); err != nil {
		t.Errorf("second close: %s", err)
	}

	blob, _, err := s.GetData(ctx, "a", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := readBlob(t, blob); got != "abc" {
		t.Errorf("got %q, want %q", got, "abc")
	}
}
