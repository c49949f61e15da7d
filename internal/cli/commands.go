package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mobiperf/backend/internal/acl"
	"mobiperf/backend/internal/health"
	"mobiperf/backend/internal/platform/rbac"
	taskrepo "mobiperf/backend/internal/task/repository"
)

func newDevicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List the devices visible to the principal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cursor, err := cmd.Flags().GetString("cursor")
			if err != nil {
				return fmt.Errorf("failed to get cursor flag: %w", err)
			}
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return fmt.Errorf("failed to get limit flag: %w", err)
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			devices, next, err := a.acl.ListDevices(cmd.Context(), a.who, cursor, limit)
			if err != nil {
				return err
			}
			renderDevices(os.Stdout, devices)
			if next != "" {
				fmt.Fprintln(os.Stdout, "next cursor:", next)
			}
			return nil
		},
	}
	cmd.Flags().String("cursor", "", "cursor returned by a previous page")
	cmd.Flags().Int("limit", 0, "page size (default 100)")
	return cmd
}

func newMeasurementsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "measurements",
		Short: "List measurements reported by visible devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			device, err := cmd.Flags().GetString("device")
			if err != nil {
				return fmt.Errorf("failed to get device flag: %w", err)
			}
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return fmt.Errorf("failed to get limit flag: %w", err)
			}
			recent, err := cmd.Flags().GetDuration("recent-time")
			if err != nil {
				return fmt.Errorf("failed to get recent-time flag: %w", err)
			}
			includeErrors, err := cmd.Flags().GetBool("include-errors")
			if err != nil {
				return fmt.Errorf("failed to get include-errors flag: %w", err)
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			exclude := !includeErrors
			q := acl.MeasurementQuery{Limit: limit, DeviceID: device, ExcludeErrors: &exclude}
			if recent > 0 {
				now := time.Now().UTC()
				start := now.Add(-recent)
				q.Start, q.End = &start, &now
			}
			ms, err := a.acl.ListMeasurements(cmd.Context(), a.who, q)
			if err != nil {
				return err
			}
			tasks, err := a.resolver.ResolveTasks(cmd.Context(), ms)
			if err != nil {
				return err
			}
			renderMeasurements(os.Stdout, ms, tasks, a.cfg.Location())
			return nil
		},
	}
	cmd.Flags().String("device", "", "restrict to one device")
	cmd.Flags().Int("limit", 0, "total result budget (default QUERY_FETCH_LIMIT)")
	cmd.Flags().Duration("recent-time", 0, "only measurements newer than this")
	cmd.Flags().Bool("include-errors", false, "include failed measurements")
	return cmd
}

func newAvailabilityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "availability <device-id>...",
		Short: "Show freshness and resource availability of devices",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			var rows []availability
			for _, id := range args {
				if _, err := a.acl.GetDevice(ctx, a.who, id); err != nil {
					if errors.Is(err, acl.ErrAccessDenied) {
						a.log.Warn("skipping device", "device_id", id, "error", err)
						continue
					}
					return err
				}
				row, err := collectAvailability(ctx, a.matcher, id)
				if err != nil {
					return err
				}
				rows = append(rows, row)
			}
			renderAvailability(os.Stdout, rows, a.cfg.Location())
			return nil
		},
	}
}

func newMatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match <task-id>",
		Short: "List the devices a task's filter selects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q: %w", args[0], err)
			}
			device, err := cmd.Flags().GetString("device")
			if err != nil {
				return fmt.Errorf("failed to get device flag: %w", err)
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if _, err := rbac.RequireAdminFromContext(cmd.Context()); err != nil {
				return err
			}

			ctx := cmd.Context()
			task, err := a.tasks.GetByID(ctx, taskID)
			if err != nil {
				return err
			}
			if task == nil {
				return fmt.Errorf("task %d not found", taskID)
			}
			if device != "" {
				ok, err := a.matcher.MatchDevice(ctx, task, device)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "task %d matches %s: %t\n", taskID, device, ok)
				return nil
			}
			devices, err := a.matcher.SupportedDevices(ctx, task)
			if err != nil {
				return err
			}
			renderDevices(os.Stdout, devices)
			return nil
		},
	}
	cmd.Flags().String("device", "", "only report whether this device matches")
	return cmd
}

func newValidationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validation <measurement-type>",
		Short: "Show validation summaries for a measurement type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recent, err := cmd.Flags().GetDuration("recent-time")
			if err != nil {
				return fmt.Errorf("failed to get recent-time flag: %w", err)
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			summaries, err := a.acl.ValidationSummaries(cmd.Context(), a.who, args[0], time.Now().UTC().Add(-recent))
			if err != nil {
				return err
			}
			renderValidation(os.Stdout, summaries, a.cfg.Location())
			return nil
		},
	}
	cmd.Flags().Duration("recent-time", 24*time.Hour, "summaries whose interval ended within this window")
	return cmd
}

func newCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <task-id> <device-id>",
		Short: "Mark a task assignment done",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q: %w", args[0], err)
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if _, err := rbac.RequireAdminFromContext(cmd.Context()); err != nil {
				return err
			}

			err = a.assignments.CompleteTask(cmd.Context(), taskID, args[1])
			switch {
			case errors.Is(err, taskrepo.ErrAlreadyCompleted):
				fmt.Fprintf(os.Stdout, "task %d on %s was already completed\n", taskID, args[1])
				return nil
			case err != nil:
				return err
			}
			fmt.Fprintf(os.Stdout, "task %d on %s completed\n", taskID, args[1])
			return nil
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check database and policy engine readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			st := health.NewChecker(a.conn, a.policy).Check(cmd.Context())
			for _, name := range st.Checked {
				result := "ok"
				if err, failed := st.Failures[name]; failed {
					result = err.Error()
				}
				fmt.Fprintf(os.Stdout, "%-10s %s\n", name, result)
			}
			if !st.Serving {
				return st.Err()
			}
			return nil
		},
	}
}
