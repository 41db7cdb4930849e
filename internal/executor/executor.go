package executor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Result is the transient outcome of one schedule's execution. A run is a
// total failure only when zero units succeeded and at least one error was
// collected; that exact condition is what earns a refund.
type Result struct {
	ChecksPerformed int
	Errors          []string
	APICost         decimal.Decimal
}

func (r *Result) TotalFailure() bool {
	return r.ChecksPerformed == 0 && len(r.Errors) > 0
}

// sleep waits for the inter-call delay unless the context ends first.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
