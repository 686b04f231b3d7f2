//go:build !unix

package file

import (
	"context"
	"errors"
)

// QuotaEstimate implements blobdb.QuotaEstimator.
// It is unsupported on this platform.
func (b *Backend) QuotaEstimate(context.Context) (int64, int64, error) {
	return 0, 0, errors.ErrUnsupported
}
