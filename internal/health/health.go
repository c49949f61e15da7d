// Package health reports readiness of the data layer: database reachability
// and policy engine health.
package health

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Pinger checks database connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks the policy engine (e.g. *engine.OPAEvaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// checkTimeout bounds each individual check.
const checkTimeout = 3 * time.Second

// Status is the outcome of one Check. Failures maps a component to its error;
// skipped components (nil dependencies) do not appear.
type Status struct {
	Serving  bool
	Checked  []string
	Failures map[string]error
}

// Err joins all failures, or nil when serving.
func (s Status) Err() error {
	var errs []error
	for _, name := range s.Checked {
		if err, ok := s.Failures[name]; ok {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Checker runs the readiness checks.
type Checker struct {
	db     Pinger
	policy PolicyChecker
}

// NewChecker returns a Checker. Either dependency may be nil to skip its check.
func NewChecker(db Pinger, policy PolicyChecker) *Checker {
	return &Checker{db: db, policy: policy}
}

// Check runs every configured check. It is serving only if all pass.
func (c *Checker) Check(ctx context.Context) Status {
	st := Status{Serving: true, Failures: map[string]error{}}
	run := func(name string, fn func(context.Context) error) {
		st.Checked = append(st.Checked, name)
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()
		if err := fn(cctx); err != nil {
			st.Serving = false
			st.Failures[name] = err
		}
	}
	if c.db != nil {
		run("database", c.db.PingContext)
	}
	if c.policy != nil {
		run("policy", c.policy.HealthCheck)
	}
	return st
}
