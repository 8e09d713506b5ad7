package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/avetta/conveyor/internal/scheduler"
)

// NewScheduleCmd создаёт группу команд для расписаний workflow.
func NewScheduleCmd(depsFn func(context.Context) (*Deps, error), outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect workflow schedules",
	}

	cmd.AddCommand(
		newScheduleDueCmd(depsFn, outputFn),
		newScheduleValidateCronCmd(outputFn),
	)

	return cmd
}

func newScheduleDueCmd(depsFn func(context.Context) (*Deps, error), outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "due",
		Short: "List schedules due for execution",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			deps, err := depsFn(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			schedules, err := deps.Schedules.ListDue(ctx, time.Now().UTC(), limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "WORKFLOW_ID", "NAME", "SPEC", "NEXT_DUE"}
			rows := make([][]string, len(schedules))
			for i, s := range schedules {
				spec := s.CronExpr
				if spec == "" {
					spec = "every " + strconv.Itoa(s.IntervalSec) + "s"
				}
				nextDue := ""
				if s.NextDueAt != nil {
					nextDue = s.NextDueAt.Format(time.RFC3339)
				}
				rows[i] = []string{
					s.ID.String(),
					s.WorkflowID.String(),
					s.Name,
					spec,
					nextDue,
				}
			}

			out.Print(headers, rows, schedules)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of results")

	return cmd
}

func newScheduleValidateCronCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-cron EXPR",
		Short: "Validate a cron expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			if err := scheduler.ValidateCronExpr(args[0]); err != nil {
				return fmt.Errorf("invalid cron expression: %w", err)
			}

			out.Success(fmt.Sprintf("Valid cron expression: %q", args[0]))
			return nil
		},
	}
}
