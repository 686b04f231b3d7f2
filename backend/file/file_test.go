package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bobg/blobdb"
	"github.com/bobg/blobdb/testutil"
)

func TestConformance(t *testing.T) {
	testutil.Conformance(context.Background(), t, New(t.TempDir()))
}

func TestLayout(t *testing.T) {
	var (
		ctx  = context.Background()
		root = t.TempDir()
		s    = blobdb.Open(New(root), "my db", "..")
	)

	if err := s.SetData(ctx, blobdb.Bytes("hello"), "a/b", nil); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(root, "my%20db", "%2E%2E", "a%2Fb")
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}

	u, ok, err := s.GetFileURL(ctx, "a/b", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("entry not found")
	}
	if !strings.HasPrefix(u, "file://") {
		t.Errorf("got locator %s, want a file URL", u)
	}

	// Stray subdirectories are not entries.
	if err = os.Mkdir(filepath.Join(root, "my%20db", "%2E%2E", "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	var names []string
	err = s.ListData(ctx, func(name string) error {
		names = append(names, name)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "a/b" {
		t.Errorf("got names %v, want [a/b]", names)
	}
}

func TestLiveBlob(t *testing.T) {
	var (
		ctx = context.Background()
		s   = blobdb.Open(New(t.TempDir()), "db", "store", blobdb.WithMutableBlob())
	)

	if err := s.SetData(ctx, blobdb.Bytes("one"), "a", nil); err != nil {
		t.Fatal(err)
	}
	blob, _, err := s.GetData(ctx, "a", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err = s.AppendData(ctx, blobdb.Bytes(" two"), "a", nil); err != nil {
		t.Fatal(err)
	}
	got, err := blobdb.ReadAll(blob)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "one two" {
		t.Errorf("got %q, want %q", got, "one two")
	}
}
