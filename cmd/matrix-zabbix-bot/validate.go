package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/lordievader/matrix-zabbix-bot/internal/config"
	"github.com/spf13/cobra"
)

var (
	validateShow bool
	validateJSON bool
)

// ValidationResult represents the validation result
type ValidationResult struct {
	Valid     bool     `json:"valid"`
	Config    string   `json:"config"`
	Realms    int      `json:"realms"`
	Rooms     int      `json:"rooms"`
	Platforms []string `json:"platforms"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// errInvalidConfig makes the command exit non-zero after printing the result
var errInvalidConfig = errors.New("configuration is invalid")

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Validate the configuration file without connecting anywhere.

This command checks:
  - YAML or INI syntax
  - Required sections and fields
  - Color tables and the fallback rule
  - Room to realm bindings

Exit codes:
  0 - Configuration is valid (warnings may be printed)
  1 - Configuration has errors`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, result := validateFile(configFile)
		if validateShow && cfg != nil {
			showConfig(cmd.OutOrStdout(), cfg)
		}
		outputValidationResult(cmd.OutOrStdout(), result, validateJSON)
		if !result.Valid {
			return errInvalidConfig
		}
		return nil
	},
}

func validateFile(path string) (*config.Config, ValidationResult) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, ValidationResult{
			Valid:  false,
			Config: path,
			Errors: []string{err.Error()},
		}
	}

	var platforms []string
	if cfg.Matrix.Enabled() {
		platforms = append(platforms, "matrix")
	}
	platforms = append(platforms, cfg.EnabledBots()...)

	return cfg, ValidationResult{
		Valid:     true,
		Config:    cfg.Path,
		Realms:    len(cfg.Monitoring),
		Rooms:     len(cfg.Bot.Rooms),
		Platforms: platforms,
		Warnings:  config.Warnings(cfg),
	}
}

func outputValidationResult(w io.Writer, result ValidationResult, jsonFormat bool) {
	if jsonFormat {
		output, err := json.Marshal(result)
		if err != nil {
			fmt.Fprintf(w, "{\"error\": \"failed to marshal json: %v\"}\n", err)
			return
		}
		fmt.Fprintln(w, string(output))
		return
	}

	if result.Valid {
		fmt.Fprintln(w, "✓ Configuration is valid")
		fmt.Fprintf(w, "  - Config: %s\n", result.Config)
		fmt.Fprintf(w, "  - Realms: %d\n", result.Realms)
		fmt.Fprintf(w, "  - Rooms bound: %d\n", result.Rooms)
		fmt.Fprintf(w, "  - Platforms: %v\n", result.Platforms)
	} else {
		fmt.Fprintln(w, "❌ Configuration validation failed:")
		for _, errMsg := range result.Errors {
			fmt.Fprintf(w, "  - %s\n", errMsg)
		}
	}
	if len(result.Warnings) > 0 {
		fmt.Fprintln(w, "\n⚠️  Warnings:")
		for _, warning := range result.Warnings {
			fmt.Fprintf(w, "  - %s\n", warning)
		}
	}
}

// showConfig prints the room bindings and color rules of a valid config
func showConfig(w io.Writer, cfg *config.Config) {
	rooms := make([]string, 0, len(cfg.Bot.Rooms))
	for room := range cfg.Bot.Rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)

	fmt.Fprintf(w, "Rooms (%d):\n", len(rooms))
	for _, room := range rooms {
		fmt.Fprintf(w, "  - %s -> %s\n", room, cfg.Bot.Rooms[room])
	}
	fmt.Fprintf(w, "\nColors (%s match):\n", cfg.TriggerColors().Mode())
	for _, rule := range cfg.TriggerColors().Rules() {
		fmt.Fprintf(w, "  - %s: %s %s\n", rule.Pattern, rule.Style.Color, rule.Style.Emoji)
	}
	fmt.Fprintln(w)
}

func init() {
	validateCmd.Flags().BoolVar(&validateShow, "show", false, "Show room bindings and color rules")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output in JSON format")
}
