package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewWebhookCmd создаёт группу команд для управления webhook'ами.
func NewWebhookCmd(depsFn func(context.Context) (*Deps, error), outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Inspect and manage webhooks",
	}

	cmd.AddCommand(
		newWebhookShowCmd(depsFn, outputFn),
		newWebhookDisableCmd(depsFn, outputFn),
	)

	return cmd
}

func newWebhookShowCmd(depsFn func(context.Context) (*Deps, error), outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show webhook details and call counters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid webhook id: %w", err)
			}

			deps, err := depsFn(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			wh, err := deps.Webhooks.GetByID(ctx, id)
			if err != nil {
				return err
			}

			lastTriggered := ""
			if wh.LastTriggeredAt != nil {
				lastTriggered = wh.LastTriggeredAt.Format(time.RFC3339)
			}

			out.Fields([][2]string{
				{"ID", wh.ID.String()},
				{"TENANT_ID", wh.TenantID.String()},
				{"URL", wh.URL},
				{"EVENTS", strings.Join(wh.Events, ", ")},
				{"ACTIVE", strconv.FormatBool(wh.IsActive)},
				{"TOTAL_CALLS", strconv.Itoa(wh.TotalCalls)},
				{"FAILED_CALLS", strconv.Itoa(wh.FailedCalls)},
				{"LAST_TRIGGERED", lastTriggered},
			}, wh)
			return nil
		},
	}
}

func newWebhookDisableCmd(depsFn func(context.Context) (*Deps, error), outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "disable ID",
		Short: "Deactivate a webhook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid webhook id: %w", err)
			}

			deps, err := depsFn(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			if err := deps.Webhooks.Deactivate(ctx, id); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Webhook disabled: %s", id))
			return nil
		},
	}
}
