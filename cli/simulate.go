package cli

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/petal-labs/ontoflow/engine"
	"github.com/petal-labs/ontoflow/workspace"
)

// NewSimulateCmd creates the "simulate" subcommand: load a workspace, execute
// one action, and print the result. Exercises the full engine without the
// server.
func NewSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate <workspace-file>",
		Short: "Execute one action against a workspace and print the result",
		Args:  cobra.ExactArgs(1),
		RunE:  runSimulate,
	}

	cmd.Flags().String("action", "", "Action ID to execute (required)")
	cmd.Flags().String("node", "", "Target node ID (required)")
	cmd.Flags().String("effects", "", "Custom effect document (JSON)")
	_ = cmd.MarkFlagRequired("action")
	_ = cmd.MarkFlagRequired("node")

	return cmd
}

func runSimulate(cmd *cobra.Command, args []string) error {
	filePath := args[0]
	actionID, _ := cmd.Flags().GetString("action")
	nodeID, _ := cmd.Flags().GetString("node")
	effectsPath, _ := cmd.Flags().GetString("effects")

	if _, err := os.Stat(filePath); errors.Is(err, os.ErrNotExist) {
		return exitError(exitFileNotFound, "file not found: %s", filePath)
	}

	cfg, err := workspace.LoadFile(filePath)
	if err != nil {
		return exitError(exitInputParse, "parsing workspace: %v", err)
	}

	if diags := cfg.Validate(); workspace.HasErrors(diags) {
		printDiagnostics(cmd.ErrOrStderr(), diags, "text")
		return exitError(exitValidation, "workspace validation failed")
	}

	var customDoc []byte
	if effectsPath != "" {
		customDoc, err = os.ReadFile(effectsPath)
		if err != nil {
			return exitError(exitFileNotFound, "reading effects file: %v", err)
		}
	}

	eng := engine.New()
	loadRes, err := eng.LoadWorkspace(cfg, customDoc)
	if err != nil {
		return exitError(exitInputParse, "loading workspace: %v", err)
	}
	for _, warning := range loadRes.Warnings {
		cmd.PrintErrln("warning:", warning)
	}

	result, err := eng.ExecuteAction(actionID, nodeID)
	if err != nil {
		return exitError(exitRuntime, "executing action: %v", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return exitError(exitRuntime, "encoding result: %v", err)
	}
	return nil
}
