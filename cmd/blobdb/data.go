package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/bobg/blobdb"
)

// oneName parses fs and requires exactly one positional argument.
func oneName(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", errors.Wrap(err, "parsing args")
	}
	if fs.NArg() != 1 {
		return "", fmt.Errorf("need exactly one entry name, got %d args", fs.NArg())
	}
	return fs.Arg(0), nil
}

func readInput(filename string) (blobdb.Bytes, error) {
	if filename == "" || filename == "-" {
		b, err := io.ReadAll(os.Stdin)
		return b, errors.Wrap(err, "reading stdin")
	}
	b, err := os.ReadFile(filename)
	return b, errors.Wrapf(err, "reading %s", filename)
}

func (c maincmd) get(ctx context.Context, fs *flag.FlagSet, args []string) error {
	name, err := oneName(fs, args)
	if err != nil {
		return err
	}
	blob, ok, err := c.s.GetData(ctx, name, nil)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", name, blobdb.ErrNotFound)
	}
	r, err := blob.Open()
	if err != nil {
		return errors.Wrapf(err, "opening %s", name)
	}
	defer r.Close()
	_, err = io.Copy(os.Stdout, r)
	return errors.Wrapf(err, "copying %s to stdout", name)
}

func (c maincmd) set(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		offset   = fs.Int64("offset", 0, "position at which to begin writing")
		doappend = fs.Bool("append", false, "write at the end of the entry (overrides -offset)")
		truncate = fs.Bool("truncate", false, "discard anything after the written data")
		input    = fs.String("in", "", "input file (default stdin)")
	)
	name, err := oneName(fs, args)
	if err != nil {
		return err
	}
	content, err := readInput(*input)
	if err != nil {
		return err
	}
	return c.s.SetData(ctx, content, name, &blobdb.Options{
		Offset:   *offset,
		Append:   *doappend,
		Truncate: *truncate,
	})
}

func (c maincmd) create(ctx context.Context, fs *flag.FlagSet, args []string) error {
	input := fs.String("in", "", "input file (default stdin)")
	name, err := oneName(fs, args)
	if err != nil {
		return err
	}
	content, err := readInput(*input)
	if err != nil {
		return err
	}
	return c.s.CreateData(ctx, content, name, nil)
}

func (c maincmd) append(ctx context.Context, fs *flag.FlagSet, args []string) error {
	input := fs.String("in", "", "input file (default stdin)")
	name, err := oneName(fs, args)
	if err != nil {
		return err
	}
	content, err := readInput(*input)
	if err != nil {
		return err
	}
	return c.s.AppendData(ctx, content, name, nil)
}

// stream copies stdin to an entry chunk by chunk,
// leaving the entry ending where the input did.
func (c maincmd) stream(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		offset   = fs.Int64("offset", 0, "position at which to begin writing")
		doappend = fs.Bool("append", false, "write at the end of the entry (overrides -offset)")
	)
	name, err := oneName(fs, args)
	if err != nil {
		return err
	}
	w, err := c.s.CreateWriteStream(ctx, name, &blobdb.Options{Offset: *offset, Append: *doappend})
	if err != nil {
		return err
	}
	if _, err = io.Copy(w, os.Stdin); err != nil {
		w.Close()
		return errors.Wrapf(err, "streaming to %s", name)
	}
	return w.Close()
}

func (c maincmd) has(ctx context.Context, fs *flag.FlagSet, args []string) error {
	name, err := oneName(fs, args)
	if err != nil {
		return err
	}
	ok, err := c.s.HasData(ctx, name, nil)
	if err != nil {
		return err
	}
	fmt.Println(ok)
	return nil
}

func (c maincmd) rm(ctx context.Context, fs *flag.FlagSet, args []string) error {
	name, err := oneName(fs, args)
	if err != nil {
		return err
	}
	ok, err := c.s.DeleteData(ctx, name, nil)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(os.Stderr, "%s not found\n", name)
	}
	return nil
}

func (c maincmd) rmAll(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	return c.s.DeleteAllData(ctx)
}

func (c maincmd) dropDB(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	return c.s.DeleteEntireDB(ctx)
}

func (c maincmd) mv(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: mv OLDNAME NEWNAME")
	}
	return c.s.RenameData(ctx, fs.Arg(0), fs.Arg(1))
}

func (c maincmd) url(ctx context.Context, fs *flag.FlagSet, args []string) error {
	name, err := oneName(fs, args)
	if err != nil {
		return err
	}
	u, ok, err := c.s.GetFileURL(ctx, name, nil)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", name, blobdb.ErrNotFound)
	}
	fmt.Println(u)
	return nil
}

func (c maincmd) ls(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	return c.s.ListData(ctx, func(name string) error {
		fmt.Println(name)
		return nil
	})
}

func (c maincmd) quota(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	u, err := blobdb.Quota(ctx, c.b)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(u)
}
