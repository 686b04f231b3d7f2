//go:build unix

package file

import (
	"context"
	"io/fs"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// QuotaEstimate implements blobdb.QuotaEstimator.
// Usage is the total size of the files beneath the root.
// Capacity is usage plus the space available to unprivileged users
// on the root's filesystem.
func (b *Backend) QuotaEstimate(ctx context.Context) (int64, int64, error) {
	var usage int64
	err := filepath.WalkDir(b.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		usage += info.Size()
		return nil
	})
	if err != nil {
		return 0, 0, errors.Wrapf(err, "walking %s", b.root)
	}

	var st unix.Statfs_t
	if err = unix.Statfs(b.root, &st); err != nil {
		return 0, 0, errors.Wrapf(err, "statfs %s", b.root)
	}
	return usage, usage + int64(st.Bavail)*int64(st.Bsize), nil
}
