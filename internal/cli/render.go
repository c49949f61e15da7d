package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	devicedomain "mobiperf/backend/internal/device/domain"
	"mobiperf/backend/internal/matcher"
	measurementdomain "mobiperf/backend/internal/measurement/domain"
	taskdomain "mobiperf/backend/internal/task/domain"
	validationdomain "mobiperf/backend/internal/validation/domain"
)

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader(header)
	return table
}

func renderDevices(w io.Writer, devices []*devicedomain.DeviceInfo) {
	table := newTable(w, []string{"ID", "Owner", "Manufacturer", "Model", "OS", "TAC"})
	for _, d := range devices {
		owner := "-"
		if !d.IsUnclaimed() {
			owner = *d.OwnerID
		}
		table.Append([]string{d.ID, owner, d.Manufacturer, d.Model, d.OS, d.TAC})
	}
	table.Render()
}

func renderMeasurements(w io.Writer, ms []*measurementdomain.Measurement, tasks map[int64]*taskdomain.Task, loc *time.Location) {
	table := newTable(w, []string{"ID", "Device", "Type", "Time", "Success", "Task", "Values"})
	for _, m := range ms {
		task := "-"
		if m.TaskID != nil {
			task = fmt.Sprintf("%d", *m.TaskID)
			if t, ok := tasks[*m.TaskID]; ok && t.Tag != "" {
				task += " (" + t.Tag + ")"
			}
		}
		table.Append([]string{
			m.ID,
			m.DeviceID,
			m.Type,
			m.TimestampIn(loc).Format(time.RFC3339),
			fmt.Sprintf("%t", m.Success),
			task,
			summarizeValues(m),
		})
	}
	table.Render()
}

// summarizeValues lists value keys; large-text values are elided.
func summarizeValues(m *measurementdomain.Measurement) string {
	values := m.Values()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := values[k]
		if v.Text {
			parts = append(parts, k+"=…")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, v.Data))
	}
	return strings.Join(parts, " ")
}

type availability struct {
	DeviceID   string
	Available  bool
	Race       float64
	Resources  float64
	Updates    int64
	LastUpdate time.Time
	HasUpdate  bool
}

func collectAvailability(ctx context.Context, m *matcher.Matcher, deviceID string) (availability, error) {
	row := availability{DeviceID: deviceID}
	var err error
	if row.Available, err = m.IsAvailable(ctx, deviceID); err != nil {
		return row, err
	}
	if row.Race, err = m.RaceStatus(ctx, deviceID); err != nil {
		return row, err
	}
	row.Resources = 1 - row.Race
	if row.Updates, err = m.NumUpdates(ctx, deviceID); err != nil {
		return row, err
	}
	if row.LastUpdate, row.HasUpdate, err = m.LastUpdateTime(ctx, deviceID); err != nil {
		return row, err
	}
	return row, nil
}

func renderAvailability(w io.Writer, rows []availability, loc *time.Location) {
	table := newTable(w, []string{"Device", "Available", "Race", "Resources", "Updates", "Last Update"})
	for _, r := range rows {
		last := "never"
		if r.HasUpdate {
			last = r.LastUpdate.In(loc).Format(time.RFC3339)
		}
		race := fmt.Sprintf("%.2f", r.Race)
		if r.Race == matcher.NoRaceData {
			race = "no data"
		}
		table.Append([]string{
			r.DeviceID,
			fmt.Sprintf("%t", r.Available),
			race,
			fmt.Sprintf("%.2f", r.Resources),
			fmt.Sprintf("%d", r.Updates),
			last,
		})
	}
	table.Render()
}

func renderValidation(w io.Writer, summaries []*validationdomain.ValidationSummary, loc *time.Location) {
	table := newTable(w, []string{"Type", "Start", "End", "Records", "Errors", "By Type", "Consistent"})
	for _, s := range summaries {
		table.Append([]string{
			s.MeasurementType,
			s.TimestampStart.In(loc).Format(time.RFC3339),
			s.TimestampEnd.In(loc).Format(time.RFC3339),
			fmt.Sprintf("%d", s.RecordCount),
			fmt.Sprintf("%d", s.ErrorCount),
			strings.Join(s.PerErrorCount, " "),
			fmt.Sprintf("%t", s.Consistent()),
		})
	}
	table.Render()
}
