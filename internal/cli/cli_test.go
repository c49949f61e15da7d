package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	devicedomain "mobiperf/backend/internal/device/domain"
	devicerepo "mobiperf/backend/internal/device/repository"
	"mobiperf/backend/internal/extension"
	"mobiperf/backend/internal/matcher"
	measurementdomain "mobiperf/backend/internal/measurement/domain"
	"mobiperf/backend/internal/platform/rbac"
	"mobiperf/backend/internal/principal"
	"mobiperf/backend/internal/security"
	taskdomain "mobiperf/backend/internal/task/domain"
	validationdomain "mobiperf/backend/internal/validation/domain"
)

func TestNewRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"devices", "measurements", "availability", "match", "validation", "complete", "health"} {
		assert.Contains(t, names, want)
	}
}

func TestResolvePrincipal_Flags(t *testing.T) {
	root := NewRootCmd()
	require.NoError(t, root.PersistentFlags().Parse([]string{"--user", "alice", "--anonymous-admin"}))

	who, err := resolvePrincipal(root, nil)
	require.NoError(t, err)
	assert.Equal(t, principal.Principal{UserID: "alice", AnonymousAdmin: true}, who)
}

func TestBindPrincipal_AdminGate(t *testing.T) {
	testCases := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"admin", []string{"--user", "root", "--admin"}, nil},
		{"owner", []string{"--user", "bob"}, rbac.ErrAdminRequired},
		{"anonymous admin", []string{"--anonymous-admin"}, rbac.ErrAdminRequired},
		{"nobody", nil, rbac.ErrUnauthenticated},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			root := NewRootCmd()
			match, _, err := root.Find([]string{"match"})
			require.NoError(t, err)
			require.NoError(t, root.PersistentFlags().Parse(tc.args))

			who, err := bindPrincipal(match, nil)
			require.NoError(t, err)
			fromCtx, ok := principal.FromContext(match.Context())
			require.True(t, ok, "principal is carried on the command context")
			assert.Equal(t, who, fromCtx)

			_, err = rbac.RequireAdminFromContext(match.Context())
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestPrincipalFromToken(t *testing.T) {
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	token, _, err := tokens.IssueAccess(principal.Principal{UserID: "root", Admin: true})
	require.NoError(t, err)

	who, err := principalFromToken(tokens, token)
	require.NoError(t, err)
	assert.Equal(t, "root", who.UserID)
	assert.True(t, who.Admin)

	_, err = principalFromToken(tokens, "not-a-token")
	assert.ErrorIs(t, err, security.ErrInvalidToken)
}

func TestRenderDevices(t *testing.T) {
	alice := "alice"
	var buf bytes.Buffer
	renderDevices(&buf, []*devicedomain.DeviceInfo{
		{ID: "d1", OwnerID: &alice, Manufacturer: "Acme", Model: "A1"},
		{ID: "d2", Manufacturer: "Other"},
	})
	out := buf.String()
	assert.Contains(t, out, "d1")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "Other")
}

func TestRenderMeasurements_ElidesLargeText(t *testing.T) {
	taskID := int64(42)
	m := &measurementdomain.Measurement{
		ID: "m1", DeviceID: "d1", Type: "http", Success: true, TaskID: &taskID,
		Timestamp: time.Date(2012, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	m.Extensions.Set(extension.Value, "body", extension.LargeText("<html>very long</html>"))
	m.Extensions.Set(extension.Value, "code", extension.Scalar(200))

	var buf bytes.Buffer
	tasks := map[int64]*taskdomain.Task{42: {ID: 42, Tag: "nightly"}}
	renderMeasurements(&buf, []*measurementdomain.Measurement{m}, tasks, time.UTC)
	out := buf.String()
	assert.Contains(t, out, "2012-06-01T12:00:00Z")
	assert.Contains(t, out, "42 (nightly)")
	assert.Contains(t, out, "body=…")
	assert.Contains(t, out, "code=200")
	assert.NotContains(t, out, "very long")
}

func TestCollectAvailability(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2012, 6, 1, 12, 0, 0, 0, time.UTC))
	devices := devicerepo.NewMemoryRepository()
	properties := devicerepo.NewMemoryPropertiesRepository(devices, clock)
	require.NoError(t, devices.Create(ctx, &devicedomain.DeviceInfo{ID: "d1"}))
	race := 0.4
	require.NoError(t, properties.Create(ctx, &devicedomain.DeviceProperties{DeviceID: "d1", CPURace: &race}))
	m := matcher.New(devices, properties, matcher.Config{}, clock, nil, nil)

	row, err := collectAvailability(ctx, m, "d1")
	require.NoError(t, err)
	assert.True(t, row.Available)
	assert.InDelta(t, 0.6, row.Resources, 1e-9)
	assert.Equal(t, int64(1), row.Updates)
	assert.True(t, row.HasUpdate)

	row, err = collectAvailability(ctx, m, "missing")
	require.NoError(t, err)
	assert.False(t, row.Available)
	assert.Equal(t, matcher.NoRaceData, row.Race)

	var buf bytes.Buffer
	renderAvailability(&buf, []availability{row}, time.UTC)
	assert.Contains(t, buf.String(), "no data")
	assert.Contains(t, buf.String(), "never")
}

func TestRenderValidation(t *testing.T) {
	s := &validationdomain.ValidationSummary{MeasurementType: "ping", RecordCount: 10, ErrorCount: 3}
	s.SetErrorByType(map[string]int64{"timeout": 2, "dns": 1})
	var buf bytes.Buffer
	renderValidation(&buf, []*validationdomain.ValidationSummary{s}, time.UTC)
	out := buf.String()
	assert.Contains(t, out, "dns:1 timeout:2")
	assert.Contains(t, out, "true")
}
