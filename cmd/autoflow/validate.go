package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"autoflow/internal/config"
	"autoflow/internal/validation"
	webModels "autoflow/internal/web/models"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a workflow definition (YAML or JSON) without a running engine",
		Long: `Validate decodes a workflow definition in the same format the API accepts
and applies the configured limits. Use "-" to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			limits := config.DefaultLimits()
			if cfg, err := config.LoadConfig(); err == nil {
				limits = cfg.Limits
			}
			name, err := validateDefinition(raw, validation.New(limits))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "workflow %q is valid\n", name)
			return nil
		},
	}
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(filepath.Clean(path))
}

// validateDefinition accepts YAML (a superset of JSON) and returns the workflow name
func validateDefinition(raw []byte, v *validation.Validator) (string, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("parse definition: %w", err)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("parse definition: %w", err)
	}

	var req webModels.WorkflowRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return "", fmt.Errorf("parse definition: %w", err)
	}
	wf, err := req.ToWorkflow()
	if err != nil {
		return "", err
	}
	if err := v.ValidateWorkflow(wf); err != nil {
		return "", err
	}
	return strings.TrimSpace(wf.Name), nil
}
