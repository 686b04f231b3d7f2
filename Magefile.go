//go:build mage
// +build mage

package main

import (
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var Default = Build

func Build() error {
	return sh.Run(mg.GoCmd(), "build", "./...")
}

func Test() error {
	args := []string{"test"}
	if mg.Verbose() {
		args = append(args, "-v")
	}
	args = append(args, "./...")
	return sh.Run(mg.GoCmd(), args...)
}

// CloudTest runs the tests,
// including the GCS, MinIO, and Postgresql ones when their environment variables are set.
func CloudTest() error {
	for _, v := range []string{"BLOBDB_GCS_TESTING_CREDS", "BLOBDB_GCS_TESTING_PROJECT", "BLOBDB_MINIO_TESTING_ENDPOINT", "BLOBDB_PG_TESTING_CONN"} {
		if os.Getenv(v) == "" {
			return mg.Fatalf(1, "%s not set", v)
		}
	}
	return sh.RunV(mg.GoCmd(), "test", "./backend/gcs", "./backend/minio", "./backend/pg")
}

func Vet() error {
	return sh.Run(mg.GoCmd(), "vet", "./...")
}

func Check() {
	mg.SerialDeps(Vet, Test)
}
