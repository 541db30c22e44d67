package infusion

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BatchResult pairs an order with its preparation or its error.
type BatchResult struct {
	OrderID     string       `json:"order_id"`
	Preparation *Preparation `json:"preparation,omitempty"`
	Err         error        `json:"-"`
	Error       string       `json:"error,omitempty"`
}

// PrepareBatch prepares independent orders concurrently, at most limit at a
// time (no limit when limit <= 0). A failing order does not stop the others;
// only context cancellation aborts the batch. Results keep the order of the
// input.
func (s *Service) PrepareBatch(ctx context.Context, orders []Order, limit int) ([]BatchResult, error) {
	results := make([]BatchResult, len(orders))
	if err := ctx.Err(); err != nil {
		return results, err
	}

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := range orders {
		o := orders[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			prep, err := s.Prepare(o)
			res := BatchResult{OrderID: o.ID, Preparation: prep, Err: err}
			if err != nil {
				res.Error = err.Error()
				s.log.Warn().Err(err).Str("order_id", o.ID).Msg("order failed")
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
