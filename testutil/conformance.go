// Package testutil contains tests that any blobdb backend should pass.
package testutil

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/blobdb"
)

// Conformance runs the whole suite against b.
// Each subtest uses its own database,
// so b may be shared with other tests.
func Conformance(ctx context.Context, t *testing.T, b blobdb.Backend) {
	tests := []struct {
		name string
		f    func(context.Context, *testing.T, *blobdb.Store)
	}{
		{"CreateExclusive", CreateExclusive},
		{"OverwriteAtOffset", OverwriteAtOffset},
		{"WriteBeyondEnd", WriteBeyondEnd},
		{"Append", Append},
		{"AppendOverridesOffset", AppendOverridesOffset},
		{"TruncateAfterWrite", TruncateAfterWrite},
		{"Absence", Absence},
		{"Snapshot", Snapshot},
		{"Rename", Rename},
		{"List", List},
		{"DeleteAll", DeleteAll},
		{"DeleteEntireDB", DeleteEntireDB},
		{"Names", Names},
		{"Stream", Stream},
		{"Sink", Sink},
		{"Quota", func(ctx context.Context, t *testing.T, _ *blobdb.Store) { Quota(ctx, t, b) }},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			s := blobdb.Open(b, "conformance-"+tc.name, "store")
			defer s.DeleteEntireDB(ctx)
			tc.f(ctx, t, s)
		})
	}
}

// Get returns the named entry's content as a string,
// failing the test if it is absent.
func Get(ctx context.Context, t *testing.T, s *blobdb.Store, name string) string {
	t.Helper()

	blob, ok, err := s.GetData(ctx, name, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("entry %s not found", name)
	}
	return readString(t, blob)
}

func readString(t *testing.T, blob blobdb.Blob) string {
	t.Helper()

	r, err := blob.Open()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

// Set stores content under name with SetData and no options,
// failing the test on error.
func Set(ctx context.Context, t *testing.T, s *blobdb.Store, name, content string) {
	t.Helper()

	if err := s.SetData(ctx, blobdb.Bytes(content), name, nil); err != nil {
		t.Fatal(err)
	}
}

func has(ctx context.Context, t *testing.T, s *blobdb.Store, name string) bool {
	t.Helper()

	ok, err := s.HasData(ctx, name, nil)
	if err != nil {
		t.Fatal(err)
	}
	return ok
}

// CreateExclusive checks that CreateData refuses to overwrite.
func CreateExclusive(ctx context.Context, t *testing.T, s *blobdb.Store) {
	err := s.CreateData(ctx, blobdb.Bytes("first"), "a", nil)
	if err != nil {
		t.Fatal(err)
	}
	err = s.CreateData(ctx, blobdb.Bytes("second"), "a", nil)
	if !errors.Is(err, blobdb.ErrAlreadyExists) {
		t.Errorf("got error %v, want %v", err, blobdb.ErrAlreadyExists)
	}
	if got := Get(ctx, t, s, "a"); got != "first" {
		t.Errorf("got %q, want %q", got, "first")
	}
}

// OverwriteAtOffset checks that a write at an offset replaces bytes in place.
func OverwriteAtOffset(ctx context.Context, t *testing.T, s *blobdb.Store) {
	Set(ctx, t, s, "a", "HELLOWORLD")
	err := s.SetData(ctx, blobdb.Bytes("XX"), "a", &blobdb.Options{Offset: 5})
	if err != nil {
		t.Fatal(err)
	}
	if got := Get(ctx, t, s, "a"); got != "HELLOXXRLD" {
		t.Errorf("got %q, want %q", got, "HELLOXXRLD")
	}
}

// WriteBeyondEnd checks that a write past the end of an entry zero-fills the gap.
func WriteBeyondEnd(ctx context.Context, t *testing.T, s *blobdb.Store) {
	Set(ctx, t, s, "a", "AB")
	err := s.SetData(ctx, blobdb.Bytes("C"), "a", &blobdb.Options{Offset: 4})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := Get(ctx, t, s, "a"), "AB\x00\x00C"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// Append checks AppendData.
func Append(ctx context.Context, t *testing.T, s *blobdb.Store) {
	Set(ctx, t, s, "a", "AB")
	err := s.AppendData(ctx, blobdb.Bytes("CD"), "a", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := Get(ctx, t, s, "a"); got != "ABCD" {
		t.Errorf("got %q, want %q", got, "ABCD")
	}

	// Appending to a missing entry creates it.
	err = s.AppendData(ctx, blobdb.Bytes("new"), "b", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := Get(ctx, t, s, "b"); got != "new" {
		t.Errorf("got %q, want %q", got, "new")
	}
}

// AppendOverridesOffset checks that Append wins when both Append and Offset are given.
func AppendOverridesOffset(ctx context.Context, t *testing.T, s *blobdb.Store) {
	Set(ctx, t, s, "a", "ABCDEF")
	err := s.SetData(ctx, blobdb.Bytes("XY"), "a", &blobdb.Options{Offset: 1, Append: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := Get(ctx, t, s, "a"); got != "ABCDEFXY" {
		t.Errorf("got %q, want %q", got, "ABCDEFXY")
	}

	err = s.AppendData(ctx, blobdb.Bytes("Z"), "a", &blobdb.Options{Offset: 2})
	if err != nil {
		t.Fatal(err)
	}
	if got := Get(ctx, t, s, "a"); got != "ABCDEFXYZ" {
		t.Errorf("got %q, want %q", got, "ABCDEFXYZ")
	}
}

// TruncateAfterWrite checks that Truncate discards what follows the write.
func TruncateAfterWrite(ctx context.Context, t *testing.T, s *blobdb.Store) {
	Set(ctx, t, s, "a", "ABCDEF")
	err := s.SetData(ctx, blobdb.Bytes("XY"), "a", &blobdb.Options{Truncate: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := Get(ctx, t, s, "a"); got != "XY" {
		t.Errorf("got %q, want %q", got, "XY")
	}

	// Without Truncate the tail survives.
	Set(ctx, t, s, "b", "ABCDEF")
	Set(ctx, t, s, "b", "XY")
	if got := Get(ctx, t, s, "b"); got != "XYCDEF" {
		t.Errorf("got %q, want %q", got, "XYCDEF")
	}

	// An empty write with Truncate empties the entry.
	err = s.SetData(ctx, blobdb.Bytes(nil), "b", &blobdb.Options{Truncate: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := Get(ctx, t, s, "b"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

// Absence checks that missing entries are reported without errors
// where that is promised,
// and with ErrNotFound where it is not.
func Absence(ctx context.Context, t *testing.T, s *blobdb.Store) {
	blob, ok, err := s.GetData(ctx, "missing", nil)
	if err != nil {
		t.Fatal(err)
	}
	if ok || blob != nil {
		t.Errorf("GetData found a missing entry")
	}

	if has(ctx, t, s, "missing") {
		t.Errorf("HasData found a missing entry")
	}

	deleted, err := s.DeleteData(ctx, "missing", nil)
	if err != nil {
		t.Fatal(err)
	}
	if deleted {
		t.Errorf("DeleteData deleted a missing entry")
	}

	u, ok, err := s.GetFileURL(ctx, "missing", nil)
	if err != nil {
		t.Fatal(err)
	}
	if ok || u != "" {
		t.Errorf("GetFileURL found a missing entry")
	}

	err = s.RenameData(ctx, "missing", "other")
	if !errors.Is(err, blobdb.ErrNotFound) {
		t.Errorf("got error %v from RenameData, want %v", err, blobdb.ErrNotFound)
	}

	Set(ctx, t, s, "present", "x")
	deleted, err = s.DeleteData(ctx, "present", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !deleted {
		t.Errorf("DeleteData did not report deleting an entry")
	}
	if has(ctx, t, s, "present") {
		t.Errorf("entry still present after DeleteData")
	}

	Set(ctx, t, s, "located", "x")
	u, ok, err = s.GetFileURL(ctx, "located", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || u == "" {
		t.Errorf("GetFileURL found no locator for an existing entry")
	}
}

// Snapshot checks that content from GetData is unaffected by later writes.
func Snapshot(ctx context.Context, t *testing.T, s *blobdb.Store) {
	Set(ctx, t, s, "a", "before")
	blob, ok, err := s.GetData(ctx, "a", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("entry not found")
	}

	err = s.SetData(ctx, blobdb.Bytes("AFTER!!!"), "a", nil)
	if err != nil {
		t.Fatal(err)
	}

	if got := readString(t, blob); got != "before" {
		t.Errorf("got %q, want %q", got, "before")
	}
	if blob.Size() != int64(len("before")) {
		t.Errorf("got size %d, want %d", blob.Size(), len("before"))
	}
}

// Rename checks RenameData.
func Rename(ctx context.Context, t *testing.T, s *blobdb.Store) {
	Set(ctx, t, s, "a", "content")
	err := s.RenameData(ctx, "a", "b")
	if err != nil {
		t.Fatal(err)
	}
	if has(ctx, t, s, "a") {
		t.Errorf("old name still present")
	}
	if !has(ctx, t, s, "b") {
		t.Errorf("new name not present")
	}
	if got := Get(ctx, t, s, "b"); got != "content" {
		t.Errorf("got %q, want %q", got, "content")
	}
}

// List checks that ListData reports every entry in order.
func List(ctx context.Context, t *testing.T, s *blobdb.Store) {
	want := []string{"a", "a b", "b/c", "z", "ü"}
	for i := len(want) - 1; i >= 0; i-- {
		Set(ctx, t, s, want[i], want[i])
	}

	// Entries of other stores are not included.
	other := s.DB().Store("other")
	Set(ctx, t, other, "elsewhere", "x")

	var got []string
	err := s.ListData(ctx, func(name string) error {
		got = append(got, name)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	stop := errors.New("stop")
	var n int
	err = s.ListData(ctx, func(string) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("got error %v, want %v", err, stop)
	}
	if n != 1 {
		t.Errorf("callback ran %d times after returning an error, want 1", n)
	}
}

// DeleteAll checks that DeleteAllData empties a store and leaves it usable.
func DeleteAll(ctx context.Context, t *testing.T, s *blobdb.Store) {
	names := []string{"a", "b", "c"}
	for _, name := range names {
		Set(ctx, t, s, name, name)
	}
	other := s.DB().Store("other")
	Set(ctx, t, other, "keep", "x")

	if err := s.DeleteAllData(ctx); err != nil {
		t.Fatal(err)
	}
	for _, name := range names {
		if has(ctx, t, s, name) {
			t.Errorf("%s still present after DeleteAllData", name)
		}
	}
	if !has(ctx, t, other, "keep") {
		t.Errorf("DeleteAllData removed an entry from another store")
	}

	Set(ctx, t, s, "a", "again")
	if got := Get(ctx, t, s, "a"); got != "again" {
		t.Errorf("got %q, want %q", got, "again")
	}
}

// DeleteEntireDB checks that DeleteEntireDB removes every store
// and that the database can be used again afterward.
func DeleteEntireDB(ctx context.Context, t *testing.T, s *blobdb.Store) {
	other := s.DB().Store("other")
	Set(ctx, t, s, "a", "x")
	Set(ctx, t, other, "b", "y")

	if err := s.DeleteEntireDB(ctx); err != nil {
		t.Fatal(err)
	}
	if has(ctx, t, s, "a") || has(ctx, t, other, "b") {
		t.Errorf("entries present after DeleteEntireDB")
	}

	Set(ctx, t, s, "a", "z")
	if got := Get(ctx, t, s, "a"); got != "z" {
		t.Errorf("got %q, want %q", got, "z")
	}
}

// Names checks how entry names are derived from arguments.
func Names(ctx context.Context, t *testing.T, s *blobdb.Store) {
	err := s.SetData(ctx, blobdb.Bytes("x"), "", nil)
	if !errors.Is(err, blobdb.ErrInvalidArgument) {
		t.Errorf("got error %v, want %v", err, blobdb.ErrInvalidArgument)
	}
	_, _, err = s.GetData(ctx, "", &blobdb.Options{})
	if !errors.Is(err, blobdb.ErrInvalidArgument) {
		t.Errorf("got error %v, want %v", err, blobdb.ErrInvalidArgument)
	}

	err = s.SetData(ctx, blobdb.Bytes("from options"), "", &blobdb.Options{Name: "opt"})
	if err != nil {
		t.Fatal(err)
	}
	if got := Get(ctx, t, s, "opt"); got != "from options" {
		t.Errorf("got %q, want %q", got, "from options")
	}

	err = s.SetData(ctx, blobdb.Bytes("positional"), "pos", &blobdb.Options{Name: "ignored"})
	if err != nil {
		t.Fatal(err)
	}
	if got := Get(ctx, t, s, "pos"); got != "positional" {
		t.Errorf("got %q, want %q", got, "positional")
	}
	if has(ctx, t, s, "ignored") {
		t.Errorf("positional name did not take precedence")
	}
}

// Stream checks CreateWriteStream,
// including the truncation on Close.
func Stream(ctx context.Context, t *testing.T, s *blobdb.Store) {
	Set(ctx, t, s, "a", strings.Repeat("-", 20))

	w, err := s.CreateWriteStream(ctx, "a", nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, chunk := range []string{"one ", "two ", "three"} {
		if _, err = io.WriteString(w, chunk); err != nil {
			t.Fatal(err)
		}
	}
	if err = w.Close(); err != nil {
		t.Fatal(err)
	}
	if got := Get(ctx, t, s, "a"); got != "one two three" {
		t.Errorf("got %q, want %q", got, "one two three")
	}
}

// Sink checks CreateWriteSink with Truncate and Append.
func Sink(ctx context.Context, t *testing.T, s *blobdb.Store) {
	Set(ctx, t, s, "a", "ABCDEFGH")

	w, err := s.CreateWriteSink(ctx, "a", &blobdb.Options{Truncate: true})
	if err != nil {
		t.Fatal(err)
	}
	if err = w.Write(ctx, blobdb.Bytes("xy")); err != nil {
		t.Fatal(err)
	}
	// Truncation happens after each write.
	if got := Get(ctx, t, s, "a"); got != "xy" {
		t.Errorf("got %q, want %q", got, "xy")
	}
	if err = w.Write(ctx, blobdb.Bytes("z")); err != nil {
		t.Fatal(err)
	}
	if err = w.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if got := Get(ctx, t, s, "a"); got != "xyz" {
		t.Errorf("got %q, want %q", got, "xyz")
	}
	if err = w.Write(ctx, blobdb.Bytes("more")); err == nil {
		t.Errorf("write after close succeeded")
	}

	w, err = s.CreateWriteSink(ctx, "a", &blobdb.Options{Append: true})
	if err != nil {
		t.Fatal(err)
	}
	if err = w.Write(ctx, blobdb.Bytes("123")); err != nil {
		t.Fatal(err)
	}
	if err = w.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if got := Get(ctx, t, s, "a"); got != "xyz123" {
		t.Errorf("got %q, want %q", got, "xyz123")
	}
}

// Quota checks that a quota report is either unknown or plausible.
func Quota(ctx context.Context, t *testing.T, b blobdb.Backend) {
	u, err := blobdb.Quota(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	if u == blobdb.Unknown {
		return
	}
	if u.Usage < 0 {
		t.Errorf("got negative usage %d", u.Usage)
	}
	if u.Quota >= 0 && u.Quota < u.Usage {
		t.Errorf("got quota %d less than usage %d", u.Quota, u.Usage)
	}
}
