package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Initiate the replica set and wait for it to converge",
	Long: `Bootstrap waits for the node to accept commands, initiates the replica set
if it does not exist yet, waits until the node is primary, and prints the
run result with the final replica set status as JSON on stdout.

Exit codes: 0 success (including a no-op run), 1 generic failure,
2 readiness timeout, 3 configuration rejected, 4 already initialized
with a different identifier, 5 convergence timeout, 6 node unreachable.`,
	RunE: runBootstrap,
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	defer app.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Bootstrap.Timeout)
	defer cancel()

	slog.Info("starting bootstrap", "target", app.describe())

	result, err := app.initiator.Run(ctx)
	if result != nil {
		printJSON(os.Stdout, result)
	} else if err != nil {
		printJSON(os.Stdout, map[string]string{"status": "error", "error": err.Error()})
	}
	if err != nil {
		return fmt.Errorf("bootstrap of %s failed: %w", app.describe(), err)
	}

	slog.Info("bootstrap completed successfully", "initiated", result.Initiated)
	return nil
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(w, `{"status":"error","error":%q}`+"\n", err.Error())
	}
}
