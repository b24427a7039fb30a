// Package cli implements the ontoflow command-line interface.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petal-labs/ontoflow/workspace"
)

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <workspace-file>",
		Short: "Validate a workspace document without loading it",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}

	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().Bool("strict", false, "Treat warnings as errors")

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	filePath := args[0]
	format, _ := cmd.Flags().GetString("format")
	strict, _ := cmd.Flags().GetBool("strict")
	out := cmd.OutOrStdout()

	if _, err := os.Stat(filePath); errors.Is(err, os.ErrNotExist) {
		return exitError(exitFileNotFound, "file not found: %s", filePath)
	}

	cfg, err := workspace.LoadFile(filePath)
	if err != nil {
		return exitError(exitInputParse, "parsing workspace: %v", err)
	}

	diags := cfg.Validate()
	printDiagnostics(out, diags, format)

	hasErrs := workspace.HasErrors(diags)
	hasWarns := len(workspace.Warnings(diags)) > 0

	if hasErrs || (strict && hasWarns) {
		return exitError(exitValidation, "validation failed")
	}

	return nil
}

// printDiagnostics writes diagnostics to the writer in the requested format,
// followed by a summary line (for text format).
func printDiagnostics(w io.Writer, diags []workspace.Diagnostic, format string) {
	if format == "json" {
		// Output an empty array rather than null when there are no diagnostics.
		if diags == nil {
			diags = []workspace.Diagnostic{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(diags)
		return
	}

	for _, d := range diags {
		sev := strings.ToUpper(d.Severity)
		if d.Path != "" {
			fmt.Fprintf(w, "%s [%s]: %s (at %s)\n", sev, d.Code, d.Message, d.Path)
		} else {
			fmt.Fprintf(w, "%s [%s]: %s\n", sev, d.Code, d.Message)
		}
	}

	errs := workspace.Errors(diags)
	warns := workspace.Warnings(diags)

	switch {
	case len(errs) == 0 && len(warns) == 0:
		fmt.Fprintln(w, "Valid!")
	case len(errs) == 0 && len(warns) > 0:
		fmt.Fprintf(w, "\nValid! (%d %s)\n", len(warns), pluralize("warning", len(warns)))
	default:
		fmt.Fprintf(w, "\n%d %s, %d %s\n",
			len(errs), pluralize("error", len(errs)),
			len(warns), pluralize("warning", len(warns)))
	}
}

// pluralize returns the singular or plural form of a word based on count.
func pluralize(word string, count int) string {
	if count == 1 {
		return word
	}
	return word + "s"
}
