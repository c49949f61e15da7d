package health

import (
	"context"
	"errors"
	"testing"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) PingContext(context.Context) error {
	return m.pingErr
}

// mockPolicyChecker implements PolicyChecker for tests.
type mockPolicyChecker struct {
	healthErr error
}

func (m *mockPolicyChecker) HealthCheck(context.Context) error {
	return m.healthErr
}

func TestCheck_NoDependencies(t *testing.T) {
	st := NewChecker(nil, nil).Check(context.Background())
	if !st.Serving {
		t.Errorf("Serving = false, want true")
	}
	if len(st.Checked) != 0 {
		t.Errorf("Checked = %v, want none", st.Checked)
	}
	if st.Err() != nil {
		t.Errorf("Err() = %v, want nil", st.Err())
	}
}

func TestCheck_AllPass(t *testing.T) {
	st := NewChecker(&mockPinger{}, &mockPolicyChecker{}).Check(context.Background())
	if !st.Serving {
		t.Fatalf("Serving = false: %v", st.Err())
	}
	if len(st.Checked) != 2 {
		t.Errorf("Checked = %v, want database and policy", st.Checked)
	}
}

func TestCheck_PingerFailure(t *testing.T) {
	st := NewChecker(&mockPinger{pingErr: errors.New("connection refused")}, &mockPolicyChecker{}).Check(context.Background())
	if st.Serving {
		t.Fatal("Serving = true, want false")
	}
	if _, ok := st.Failures["database"]; !ok {
		t.Errorf("Failures = %v, want database", st.Failures)
	}
	if _, ok := st.Failures["policy"]; ok {
		t.Errorf("policy should pass")
	}
}

func TestCheck_PolicyFailure(t *testing.T) {
	policyErr := errors.New("rego compile failed")
	st := NewChecker(nil, &mockPolicyChecker{healthErr: policyErr}).Check(context.Background())
	if st.Serving {
		t.Fatal("Serving = true, want false")
	}
	if !errors.Is(st.Err(), policyErr) {
		t.Errorf("Err() = %v, want wrapping %v", st.Err(), policyErr)
	}
}
