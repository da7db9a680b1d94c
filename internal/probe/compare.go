package probe

import (
	"context"
	"errors"

	"github.com/mateo19851/http-client-test/pkg/model"
)

// Compare runs each strategy in turn against endpoint, every run with its own
// before and after census. With no strategies it runs model.Strategies.
// It stops at the first run that returns an error; a stopped run's partial
// result is still included.
func (p *Probe) Compare(ctx context.Context, endpoint string, iterations int, strategies ...model.Strategy) ([]model.ProbeResult, error) {
	if len(strategies) == 0 {
		strategies = model.Strategies
	}

	results := make([]model.ProbeResult, 0, len(strategies))
	for _, s := range strategies {
		res, err := p.Run(ctx, s, endpoint, iterations)
		if err != nil {
			if errors.Is(err, ErrStopped) {
				results = append(results, res)
			}
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}
