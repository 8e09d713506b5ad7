// Conveyor CLI — операторский инструмент командной строки
// для осмотра и управления задачами пайплайна.
//
// Использование:
//
//	conveyor [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	enqueue             Постановка задач в очередь
//	execution           Просмотр agent executions
//	workflow-execution  Просмотр workflow executions
//	webhook             Просмотр и управление webhook'ами
//	schedule            Просмотр расписаний
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/avetta/conveyor/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "conveyor",
		Short:         "Conveyor CLI — task pipeline operations tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	depsFn := func(ctx context.Context) (*cli.Deps, error) { return cli.Connect(ctx) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewEnqueueCmd(depsFn, outputFn),
		cli.NewExecutionCmd(depsFn, outputFn),
		cli.NewWorkflowExecutionCmd(depsFn, outputFn),
		cli.NewWebhookCmd(depsFn, outputFn),
		cli.NewScheduleCmd(depsFn, outputFn),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
