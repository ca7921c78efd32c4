package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"arc-framework/rsinit/internal/replset"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current replica set status and exit",
	Long: `Status prints the node's replSetGetStatus snapshot as JSON without
changing anything. It exits 1 when the node has no replica set yet and
6 when the node cannot be reached.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	defer app.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	status, err := app.initiator.ReportStatus(ctx)
	switch {
	case errors.Is(err, replset.ErrNotInitialized):
		printJSON(os.Stdout, map[string]string{"status": "not-initialized"})
		return fmt.Errorf("%s has no replica set configuration", app.describe())
	case err != nil:
		printJSON(os.Stdout, map[string]string{"status": "error", "error": err.Error()})
		return fmt.Errorf("reading status of %s: %w", app.describe(), err)
	}

	printJSON(os.Stdout, status)
	return nil
}
