package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/bobg/blobdb"
	"github.com/bobg/blobdb/backend/mem"
	"github.com/bobg/blobdb/testutil"
)

func TestConformance(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(new(bytes.Buffer), &slog.HandlerOptions{Level: slog.LevelDebug}))
	testutil.Conformance(context.Background(), t, New(mem.New(0), logger))
}

func TestLogging(t *testing.T) {
	var (
		ctx    = context.Background()
		buf    = new(bytes.Buffer)
		logger = slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		s      = blobdb.Open(New(mem.New(0), logger), "db", "store")
	)

	testutil.Set(ctx, t, s, "a", "hello")
	if got := testutil.Get(ctx, t, s, "a"); got != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
	if _, _, err := s.GetData(ctx, "missing", nil); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateData(ctx, blobdb.Bytes("again"), "a", nil); err == nil {
		t.Fatal("exclusive create of existing entry succeeded")
	}

	var (
		lines  = strings.Split(strings.TrimSpace(buf.String()), "\n")
		errors int
	)
	for _, line := range lines {
		if strings.Contains(line, "level=ERROR") {
			errors++
		}
	}

	for _, want := range []string{"msg=OpenRoot", "msg=OpenChild", "msg=OpenEntry", "msg=Write", "msg=ReadContent"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log does not contain %s", want)
		}
	}

	// The failed exclusive create is an error; the missing entry is not.
	if errors != 1 {
		t.Errorf("got %d error lines, want 1; log:\n%s", errors, buf.String())
	}
}
