package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/bobg/blobdb"
	"github.com/bobg/blobdb/backend"
)

func loadConfig(filename string) (map[string]interface{}, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "opening config file %s", filename)
	}
	defer f.Close()

	var conf map[string]interface{}
	dec := json.NewDecoder(f)
	dec.UseNumber()
	err = dec.Decode(&conf)
	return conf, errors.Wrapf(err, "decoding config file %s", filename)
}

func backendFromConfig(ctx context.Context, conf map[string]interface{}) (blobdb.Backend, error) {
	b, err := backend.FromConfig(ctx, conf)
	if err != nil {
		return nil, errors.Wrapf(err, "creating backend (known types: %v)", backend.Types())
	}
	return b, nil
}
