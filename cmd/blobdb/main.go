// Command blobdb is a CLI interface to a blobdb database.
//
// Usage:
//
//	blobdb [-config FILE] [-db NAME] [-store NAME] [-mutable] [-v] SUBCOMMAND ARGS...
//
// The config file is a JSON object whose "type" field names a registered backend.
// It may also set "db", "store", and "mutable",
// which the corresponding flags override.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bobg/subcmd"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/bobg/blobdb"
	"github.com/bobg/blobdb/backend/logging"

	_ "github.com/bobg/blobdb/backend/file"
	_ "github.com/bobg/blobdb/backend/gcs"
	_ "github.com/bobg/blobdb/backend/lru"
	_ "github.com/bobg/blobdb/backend/mem"
	_ "github.com/bobg/blobdb/backend/minio"
	_ "github.com/bobg/blobdb/backend/pg"
	_ "github.com/bobg/blobdb/backend/sqlite3"
)

type maincmd struct {
	b blobdb.Backend
	s *blobdb.Store
}

func main() {
	var (
		config  = flag.String("config", "blobdbconf.json", "path to config file")
		dbName  = flag.String("db", "", "database name (default from config)")
		store   = flag.String("store", "", "store name (default from config)")
		mutable = flag.Bool("mutable", false, "read live views of entries instead of copies")
		verbose = flag.Bool("v", false, "log every backend operation")
	)
	flag.Parse()

	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	if *verbose {
		ll.Set(slog.LevelDebug)
	}
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
	slog.SetDefault(logger)

	if err := run(logger, *config, *dbName, *store, *mutable, *verbose); err != nil {
		logger.Error("blobdb", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, config, dbName, store string, mutable, verbose bool) error {
	if config == "" {
		return fmt.Errorf("config value not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	conf, err := loadConfig(config)
	if err != nil {
		return err
	}
	b, err := backendFromConfig(ctx, conf)
	if err != nil {
		return err
	}
	if verbose {
		b = logging.New(b, logger)
	}

	if dbName == "" {
		dbName, _ = conf["db"].(string)
	}
	if store == "" {
		store, _ = conf["store"].(string)
	}
	if dbName == "" || store == "" {
		return fmt.Errorf("database and store names are required")
	}
	if m, ok := conf["mutable"].(bool); ok && m {
		mutable = true
	}

	var opts []blobdb.StoreOption
	if mutable {
		opts = append(opts, blobdb.WithMutableBlob())
	}

	c := maincmd{b: b, s: blobdb.Open(b, dbName, store, opts...)}
	return subcmd.Run(ctx, c, flag.Args())
}

func (c maincmd) Subcmds() map[string]subcmd.Subcmd {
	return map[string]subcmd.Subcmd{
		"append":  c.append,
		"create":  c.create,
		"drop-db": c.dropDB,
		"get":     c.get,
		"has":     c.has,
		"ls":      c.ls,
		"mv":      c.mv,
		"quota":   c.quota,
		"rm":      c.rm,
		"rm-all":  c.rmAll,
		"set":     c.set,
		"stream":  c.stream,
		"url":     c.url,
	}
}
