package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	devicedomain "mobiperf/backend/internal/device/domain"
	"mobiperf/backend/internal/platform/rbac"
	"mobiperf/backend/internal/principal"
)

const (
	policyPackage = "mobiperf.device_access"
	allowQuery    = "data.mobiperf.device_access.allow"
)

// Default Rego policy; mirrors rbac.CanAccessDevice, which is also the fallback
// when evaluation fails.
const defaultRegoPolicy = `package mobiperf.device_access

default allow := false

allow if {
	input.principal.admin
}

allow if {
	input.principal.anonymous_admin
	input.device.unclaimed
}

allow if {
	input.principal.user_id != ""
	input.device.owner_id == input.principal.user_id
}
`

// OPAEvaluator evaluates device visibility using OPA Rego. Extra modules passed to
// NewOPAEvaluator must declare package mobiperf.device_access and may add allow rules.
type OPAEvaluator struct {
	query  rego.PreparedEvalQuery
	logger *slog.Logger
}

var _ Evaluator = (*OPAEvaluator)(nil)

// NewOPAEvaluator compiles the default policy plus modules and prepares the allow query.
func NewOPAEvaluator(ctx context.Context, logger *slog.Logger, modules ...string) (*OPAEvaluator, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	compiler, err := compile(modules)
	if err != nil {
		return nil, err
	}
	q, err := rego.New(
		rego.Query(allowQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare %s: %w", policyPackage, err)
	}
	return &OPAEvaluator{query: q, logger: logger.With("component", "policy")}, nil
}

func compile(extra []string) (*ast.Compiler, error) {
	modules := map[string]string{"policy_0.rego": defaultRegoPolicy}
	for i, m := range extra {
		modules[fmt.Sprintf("policy_%d.rego", i+1)] = m
	}
	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return nil, fmt.Errorf("compile policies: %w", err)
	}
	return compiler, nil
}

// HealthCheck verifies that the in-process OPA Rego engine can compile and evaluate the default policy.
// Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	compiler, err := compile(nil)
	if err != nil {
		return fmt.Errorf("compile default policy: %w", err)
	}
	owner := "health"
	q := rego.New(
		rego.Query(allowQuery),
		rego.Compiler(compiler),
		rego.Input(buildInput(principal.Principal{UserID: owner}, &devicedomain.DeviceInfo{ID: "health", OwnerID: &owner})),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return fmt.Errorf("eval default policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	if allowed, ok := rs[0].Expressions[0].Value.(bool); !ok || !allowed {
		return fmt.Errorf("default policy denied owner access")
	}
	return nil
}

// CanAccessDevice evaluates the allow rule for who and d. When evaluation fails the
// built-in rule decides and the failure is logged.
func (e *OPAEvaluator) CanAccessDevice(ctx context.Context, who principal.Principal, d *devicedomain.DeviceInfo) (bool, error) {
	if d == nil {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(who, d)))
	if err != nil {
		e.logger.Warn("policy evaluation failed, using defaults", "device_id", d.ID, "error", err)
		return rbac.CanAccessDevice(who, d), nil
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		e.logger.Warn("policy returned non-boolean allow", "device_id", d.ID, "value", rs[0].Expressions[0].Value)
		return false, nil
	}
	return allowed, nil
}

func buildInput(who principal.Principal, d *devicedomain.DeviceInfo) map[string]interface{} {
	var owner interface{}
	if d.OwnerID != nil {
		owner = *d.OwnerID
	}
	return map[string]interface{}{
		"principal": map[string]interface{}{
			"user_id":         who.UserID,
			"admin":           who.Admin,
			"anonymous_admin": who.AnonymousAdmin,
		},
		"device": map[string]interface{}{
			"id":        d.ID,
			"owner_id":  owner,
			"unclaimed": d.IsUnclaimed(),
		},
	}
}
