package mem

import (
	"context"
	"errors"
	"testing"

	"github.com/bobg/blobdb"
	"github.com/bobg/blobdb/testutil"
)

func TestConformance(t *testing.T) {
	testutil.Conformance(context.Background(), t, New(0))
}

func TestCapacity(t *testing.T) {
	var (
		ctx = context.Background()
		b   = New(8)
		s   = blobdb.Open(b, "db", "store")
	)

	if err := s.SetData(ctx, blobdb.Bytes("12345"), "a", nil); err != nil {
		t.Fatal(err)
	}
	err := s.SetData(ctx, blobdb.Bytes("6789"), "b", nil)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("got error %v, want %v", err, ErrQuotaExceeded)
	}

	// Shrinking an entry frees space.
	if err = s.SetData(ctx, blobdb.Bytes("1"), "a", &blobdb.Options{Truncate: true}); err != nil {
		t.Fatal(err)
	}
	if err = s.SetData(ctx, blobdb.Bytes("6789"), "b", nil); err != nil {
		t.Fatal(err)
	}

	usage, capacity, err := b.QuotaEstimate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if usage != 5 || capacity != 8 {
		t.Errorf("got usage %d and capacity %d, want 5 and 8", usage, capacity)
	}

	if err = s.DeleteEntireDB(ctx); err != nil {
		t.Fatal(err)
	}
	if usage, _, _ = b.QuotaEstimate(ctx); usage != 0 {
		t.Errorf("got usage %d after DeleteEntireDB, want 0", usage)
	}
}

func TestRemovedHandles(t *testing.T) {
	ctx := context.Background()

	b := New(0)
	root, err := b.OpenRoot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	c, err := root.OpenChild(ctx, "c", true)
	if err != nil {
		t.Fatal(err)
	}
	e, err := c.OpenEntry(ctx, "e", blobdb.EntryFlags{Create: true})
	if err != nil {
		t.Fatal(err)
	}
	w, err := e.OpenWriter(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err = c.RemoveRecursively(ctx); err != nil {
		t.Fatal(err)
	}

	if err = w.Write(ctx, []byte("x")); !errors.Is(err, blobdb.ErrNotFound) {
		t.Errorf("write after removal: got error %v, want %v", err, blobdb.ErrNotFound)
	}
	if _, err = c.OpenEntry(ctx, "e", blobdb.EntryFlags{Create: true}); !errors.Is(err, blobdb.ErrNotFound) {
		t.Errorf("open in removed container: got error %v, want %v", err, blobdb.ErrNotFound)
	}
	if _, err = root.OpenChild(ctx, "c", false); !errors.Is(err, blobdb.ErrNotFound) {
		t.Errorf("open removed container: got error %v, want %v", err, blobdb.ErrNotFound)
	}
	if got, want := e.Locator(), "mem://e"; got != want {
		t.Errorf("got locator %s, want %s", got, want)
	}
}
