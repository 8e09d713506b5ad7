package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/avetta/conveyor/internal/domain"
)

// NewEnqueueCmd создаёт группу команд постановки задач в очередь.
func NewEnqueueCmd(depsFn func(context.Context) (*Deps, error), outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue tasks",
	}

	cmd.AddCommand(
		newEnqueueAgentCmd(depsFn, outputFn),
		newEnqueueWorkflowCmd(depsFn, outputFn),
	)

	return cmd
}

func newEnqueueAgentCmd(depsFn func(context.Context) (*Deps, error), outputFn func() *Output) *cobra.Command {
	var tenantID string
	var userID string
	var inputs []string

	cmd := &cobra.Command{
		Use:   "agent AGENT_ID",
		Short: "Enqueue an agent execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			agentID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid agent id: %w", err)
			}
			tenant, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}

			exec := &domain.Execution{
				TenantID:  tenant,
				AgentID:   agentID,
				InputData: parseInputs(inputs),
			}
			if userID != "" {
				user, err := uuid.Parse(userID)
				if err != nil {
					return fmt.Errorf("invalid user id: %w", err)
				}
				exec.TriggeredByUserID = &user
			}

			deps, err := depsFn(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			id, err := deps.Router.EnqueueExecution(ctx, exec)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Execution enqueued: %s", id))
			out.Print(
				[]string{"ID", "AGENT_ID", "STATUS"},
				[][]string{{id.String(), agentID.String(), string(exec.Status)}},
				exec,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&userID, "user", "", "Triggering user ID")
	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Input values as KEY=VALUE (repeatable)")
	cmd.MarkFlagRequired("tenant")

	return cmd
}

func newEnqueueWorkflowCmd(depsFn func(context.Context) (*Deps, error), outputFn func() *Output) *cobra.Command {
	var tenantID string
	var userID string
	var inputs []string

	cmd := &cobra.Command{
		Use:   "workflow WORKFLOW_ID",
		Short: "Enqueue a workflow execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			workflowID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid workflow id: %w", err)
			}
			tenant, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}

			exec := &domain.WorkflowExecution{
				TenantID:   tenant,
				WorkflowID: workflowID,
				InputData:  parseInputs(inputs),
			}
			if userID != "" {
				user, err := uuid.Parse(userID)
				if err != nil {
					return fmt.Errorf("invalid user id: %w", err)
				}
				exec.TriggeredByUserID = &user
			}

			deps, err := depsFn(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			id, err := deps.Router.EnqueueWorkflow(ctx, exec)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow execution enqueued: %s", id))
			out.Print(
				[]string{"ID", "WORKFLOW_ID", "STATUS"},
				[][]string{{id.String(), workflowID.String(), string(exec.Status)}},
				exec,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&userID, "user", "", "Triggering user ID")
	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Input values as KEY=VALUE (repeatable)")
	cmd.MarkFlagRequired("tenant")

	return cmd
}

// parseInputs собирает KEY=VALUE пары в map.
func parseInputs(inputs []string) map[string]any {
	if len(inputs) == 0 {
		return nil
	}
	m := make(map[string]any, len(inputs))
	for _, kv := range inputs {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			m[parts[0]] = parts[1]
		}
	}
	return m
}
