package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/uep-dev/uepd/internal/coretypes"
)

var (
	runTimeout time.Duration
	runDir     string
)

var runCmd = &cobra.Command{
	Use:   "run [message...]",
	Short: "Submit one message to the core and print the resulting output",
	Long: `run wires a Core, submits the given text as a single input, waits
for the triggered cycle to finish (an output layer completion, or a
cycle failure), and exits.

It is meant for one-shot use from a shell, not as the daemon; use
'uepd serve' to keep the System Loop running across many turns.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInteractive,
}

func init() {
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 30*time.Second, "Maximum time to wait for the cycle to complete")
	runCmd.Flags().StringVar(&runDir, "directory", "", "Working directory")
}

func runInteractive(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")

	workDir, err := GetWorkDir(runDir)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
	defer cancel()

	c, _, err := buildCore(ctx, workDir)
	if err != nil {
		return err
	}

	done := make(chan struct{}, 1)
	var cycleErr string
	unsub := c.Bus().SubscribeAll("run-cmd", func(e coretypes.Event) {
		switch e.Type {
		case coretypes.EventOutputLayerComplete, coretypes.EventCycleCompleted:
			if v, ok := e.Data["error"].(string); ok {
				cycleErr = v
			}
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})
	defer unsub()

	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("starting core: %w", err)
	}
	defer c.Stop()

	n := c.Submit(text)
	if n == 0 {
		return fmt.Errorf("run: %q did not segment into any runnable intent", text)
	}

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("run: timed out waiting for the cycle to finish: %w", ctx.Err())
	}

	if cycleErr != "" {
		return fmt.Errorf("run: cycle failed: %s", cycleErr)
	}
	return nil
}
