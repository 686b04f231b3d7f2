package blobdb

import (
	"context"
	stderrs "errors"

	"github.com/pkg/errors"
)

// Usage is a report of storage usage and capacity in bytes.
// A value of -1 means unknown.
type Usage struct {
	Usage int64 `json:"usage"`
	Quota int64 `json:"quota"`
}

// Unknown is the Usage reported for a backend with no quota capability.
var Unknown = Usage{Usage: -1, Quota: -1}

// Quota reports b's storage usage and capacity.
// If b does not implement QuotaEstimator,
// or its estimate fails with errors.ErrUnsupported,
// the result is Unknown.
func Quota(ctx context.Context, b Backend) (Usage, error) {
	q, ok := b.(QuotaEstimator)
	if !ok {
		return Unknown, nil
	}
	usage, capacity, err := q.QuotaEstimate(ctx)
	if stderrs.Is(err, stderrs.ErrUnsupported) {
		return Unknown, nil
	}
	if err != nil {
		return Usage{}, errors.Wrap(err, "estimating quota")
	}
	return Usage{Usage: usage, Quota: capacity}, nil
}
