package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewExecutionCmd создаёт группу команд для просмотра agent executions.
func NewExecutionCmd(depsFn func(context.Context) (*Deps, error), outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execution",
		Short: "Inspect agent executions",
	}

	cmd.AddCommand(
		newExecutionShowCmd(depsFn, outputFn),
		newExecutionPendingCmd(depsFn, outputFn),
		newExecutionRequeueCmd(depsFn, outputFn),
	)

	return cmd
}

func newExecutionShowCmd(depsFn func(context.Context) (*Deps, error), outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show execution details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid execution id: %w", err)
			}

			deps, err := depsFn(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			exec, err := deps.Executions.GetByID(ctx, id)
			if err != nil {
				return err
			}

			out.Fields([][2]string{
				{"ID", exec.ID.String()},
				{"AGENT_ID", exec.AgentID.String()},
				{"TENANT_ID", exec.TenantID.String()},
				{"STATUS", string(exec.Status)},
				{"ATTEMPT", strconv.Itoa(exec.Attempt)},
				{"TOKENS_USED", strconv.Itoa(exec.TokensUsed)},
				{"TIME_MS", strconv.FormatInt(exec.ExecutionTimeMS, 10)},
				{"ERROR", exec.ErrorMessage},
				{"CREATED", exec.CreatedAt.Format(time.RFC3339)},
			}, exec)
			return nil
		},
	}
}

func newExecutionPendingCmd(depsFn func(context.Context) (*Deps, error), outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List pending executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			deps, err := depsFn(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			execs, err := deps.Executions.ListPending(ctx, limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "AGENT_ID", "ATTEMPT", "CREATED"}
			rows := make([][]string, len(execs))
			for i, e := range execs {
				rows[i] = []string{
					e.ID.String(),
					e.AgentID.String(),
					strconv.Itoa(e.Attempt),
					e.CreatedAt.Format(time.RFC3339),
				}
			}

			out.Print(headers, rows, execs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of results")

	return cmd
}

func newExecutionRequeueCmd(depsFn func(context.Context) (*Deps, error), outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue ID",
		Short: "Requeue a failed execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid execution id: %w", err)
			}

			deps, err := depsFn(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			if err := deps.Executions.Requeue(ctx, id); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Execution requeued: %s", id))
			return nil
		},
	}
}

// NewWorkflowExecutionCmd создаёт группу команд для workflow executions.
func NewWorkflowExecutionCmd(depsFn func(context.Context) (*Deps, error), outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow-execution",
		Short: "Inspect workflow executions",
	}

	cmd.AddCommand(newWorkflowExecutionShowCmd(depsFn, outputFn))

	return cmd
}

func newWorkflowExecutionShowCmd(depsFn func(context.Context) (*Deps, error), outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show workflow execution details including step log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid workflow execution id: %w", err)
			}

			deps, err := depsFn(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			exec, err := deps.WorkflowExecutions.GetByID(ctx, id)
			if err != nil {
				return err
			}

			out.Fields([][2]string{
				{"ID", exec.ID.String()},
				{"WORKFLOW_ID", exec.WorkflowID.String()},
				{"TENANT_ID", exec.TenantID.String()},
				{"STATUS", string(exec.Status)},
				{"ATTEMPT", strconv.Itoa(exec.Attempt)},
				{"CURRENT_STEP", strconv.Itoa(exec.CurrentStep)},
				{"ERROR", exec.ErrorMessage},
			}, exec)

			if len(exec.ExecutionLog) > 0 && !out.jsonMode {
				headers := []string{"STEP", "NODE_ID", "TYPE", "STATUS", "ERROR"}
				rows := make([][]string, len(exec.ExecutionLog))
				for i, entry := range exec.ExecutionLog {
					rows[i] = []string{
						strconv.Itoa(entry.Step),
						entry.NodeID,
						entry.NodeType,
						string(entry.Status),
						entry.Error,
					}
				}
				out.Table(headers, rows)
			}
			return nil
		},
	}
}
