package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/uep-dev/uepd/internal/config"
)

var debugDir string

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Debug utilities",
	Long:  `Debug utilities for troubleshooting uepd configuration and runtime state.`,
}

var debugConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runDebugConfig,
}

var debugPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show system paths",
	RunE:  runDebugPaths,
}

var debugStateCmd = &cobra.Command{
	Use:   "state",
	Short: "Wire a Core and dump its State Queue and session snapshot",
	Long: `state builds a Core against the on-disk storage the daemon uses,
loads the persisted State Queue without starting the System Loop, and
prints the current item, pending items, and the active General
Session as JSON.`,
	RunE: runDebugState,
}

func init() {
	debugStateCmd.Flags().StringVar(&debugDir, "directory", "", "Working directory")
	debugCmd.AddCommand(debugConfigCmd)
	debugCmd.AddCommand(debugPathsCmd)
	debugCmd.AddCommand(debugStateCmd)
}

func runDebugConfig(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(appConfig, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(data))
	return nil
}

func runDebugPaths(cmd *cobra.Command, args []string) error {
	paths := config.GetPaths()

	fmt.Println("uepd system paths:")
	fmt.Println()
	fmt.Printf("  Config:   %s\n", paths.Config)
	fmt.Printf("  Data:     %s\n", paths.Data)
	fmt.Printf("  Cache:    %s\n", paths.Cache)
	fmt.Printf("  State:    %s\n", paths.State)
	fmt.Printf("  Storage:  %s\n", paths.StoragePath())
	fmt.Printf("  Auth:     %s\n", paths.AuthPath())

	return nil
}

func runDebugState(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(debugDir)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	c, _, err := buildCore(ctx, workDir)
	if err != nil {
		return err
	}
	if err := c.Queue().Load(ctx); err != nil {
		return fmt.Errorf("loading state queue: %w", err)
	}

	snapshot := map[string]any{
		"current":        c.Queue().Current(),
		"pending":        c.Queue().Pending(),
		"generalSession": c.Sessions().ActiveGeneralSession(),
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
