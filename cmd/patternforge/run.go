package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/patternforge/patternforge/internal/config"
	"github.com/patternforge/patternforge/internal/engine"
	"github.com/patternforge/patternforge/pkg/models"
	"github.com/patternforge/patternforge/pkg/server"
)

var runCmd = &cobra.Command{
	Use:   "run <pattern>",
	Short: "Run a pattern once",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, sess, err := server.BuildEngine(config.Load())
		if err != nil {
			return err
		}
		defer sess.Shutdown()

		rawInputs, _ := cmd.Flags().GetStringArray("input")
		inputs, err := parseInputFlags(rawInputs)
		if err != nil {
			return err
		}

		override := overrideFromFlags(cmd)
		result, err := eng.Run(context.Background(), engine.RunRequest{
			PatternID:     args[0],
			Inputs:        inputs,
			ModelOverride: override,
		})
		if err != nil {
			return err
		}

		pattern, err := eng.GetPattern(args[0])
		if err != nil {
			return err
		}
		allowExec, _ := cmd.Flags().GetBool("exec")
		return presentOutputs(cmd, pattern, result, allowExec)
	},
}

func init() {
	runCmd.Flags().StringArrayP("input", "i", nil, "pattern input as name=value (repeatable)")
	runCmd.Flags().StringP("model", "m", "", "override the pattern's model")
	runCmd.Flags().Float64("temperature", -1, "override the sampling temperature")
	runCmd.Flags().Bool("exec", false, "run outputs whose action is execute")
	runCmd.Flags().Bool("json", false, "print the raw classified outputs as JSON")
}

// parseInputFlags turns repeated name=value flags into a raw input map.
func parseInputFlags(raw []string) (map[string]any, error) {
	inputs := make(map[string]any, len(raw))
	for _, pair := range raw {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --input %q, expected name=value", pair)
		}
		inputs[name] = value
	}
	return inputs, nil
}

func overrideFromFlags(cmd *cobra.Command) *models.ModelConfig {
	override := &models.ModelConfig{}
	set := false
	if model, _ := cmd.Flags().GetString("model"); model != "" {
		override.ModelName = model
		set = true
	}
	if temp, _ := cmd.Flags().GetFloat64("temperature"); temp >= 0 {
		override.Temperature = &temp
		set = true
	}
	if !set {
		return nil
	}
	return override
}

// presentOutputs renders classified outputs in declaration order, acting
// on each slot's action.
func presentOutputs(cmd *cobra.Command, pattern *models.PatternDefinition, result *engine.RunResult, allowExec bool) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
	}

	out := cmd.OutOrStdout()
	for _, spec := range pattern.Outputs {
		value, ok := result.Outputs.Get(spec.Name)
		if !ok {
			continue
		}

		switch spec.Action {
		case models.ActionNone:
			continue
		case models.ActionWrite:
			if err := os.WriteFile(spec.WriteToFile, []byte(value.Raw), 0o644); err != nil {
				return fmt.Errorf("write output %s: %w", spec.Name, err)
			}
			fmt.Fprintf(out, "wrote %s to %s\n", spec.Name, spec.WriteToFile)
		case models.ActionExecute:
			fmt.Fprintf(out, "%s:\n  %s\n", spec.Name, value.Raw)
			if !allowExec {
				fmt.Fprintln(out, "(pass --exec to run it)")
				continue
			}
			command := exec.Command("sh", "-c", value.Raw)
			command.Stdout = out
			command.Stderr = cmd.ErrOrStderr()
			if err := command.Run(); err != nil {
				return fmt.Errorf("execute output %s: %w", spec.Name, err)
			}
		default: // display
			if len(pattern.Outputs) > 1 {
				fmt.Fprintf(out, "── %s ──\n", spec.Name)
			}
			fmt.Fprintln(out, renderValue(value))
		}
	}
	return nil
}

func renderValue(value models.OutputValue) string {
	if value.Type == models.OutputJSON {
		pretty, err := json.MarshalIndent(value.Value, "", "  ")
		if err == nil {
			return string(pretty)
		}
	}
	return strings.TrimRight(value.Raw, "\n")
}
