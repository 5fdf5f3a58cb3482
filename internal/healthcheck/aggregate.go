package healthcheck

import "context"

// Aggregate runs every checker in order and concatenates the results.
type Aggregate struct {
	checkers []Checker
}

// NewAggregate creates an aggregate checker, nil entries are skipped.
func NewAggregate(checkers ...Checker) *Aggregate {
	items := make([]Checker, 0, len(checkers))
	for _, c := range checkers {
		if c != nil {
			items = append(items, c)
		}
	}
	return &Aggregate{checkers: items}
}

// ListChecks evaluates all checkers.
func (a *Aggregate) ListChecks(ctx context.Context) []CheckResult {
	if a == nil {
		return []CheckResult{}
	}
	result := []CheckResult{}
	for _, c := range a.checkers {
		result = append(result, c.ListChecks(ctx)...)
	}
	return result
}

// Overall folds results into one status: error beats warn beats ok.
func Overall(results []CheckResult) string {
	status := StatusOK
	for _, r := range results {
		switch r.Status {
		case StatusError:
			return StatusError
		case StatusWarn, StatusUnknown:
			status = StatusWarn
		}
	}
	return status
}
