package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/qntx-caption/ai/provider"
	"github.com/teranos/qntx-caption/am"
	"github.com/teranos/qntx-caption/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Show and validate configuration",
	Long: `am — Show and validate the caption configuration

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (CAPTION_* prefix, plus OPENROUTER_API_KEY and ANTHROPIC_API_KEY)
3. Project config (caption.toml, searched upwards from the working directory)
4. User config (~/.qntx/caption.toml)
5. System config (/etc/qntx-caption/caption.toml)
6. Default values

Examples:
  caption am show                    # Show current configuration
  caption am show --format json      # Show configuration in JSON format
  caption am get provider.type       # Get specific config value
  caption am where                   # Show where each value comes from
  caption am validate                # Validate current configuration`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective configuration from all sources. Secrets are masked.",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., field.image, provider.type)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where each configuration value is loaded from",
	RunE:  runAmWhere,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

// maskedSettings rebuilds the nested settings tree from the introspected,
// secret-masked flat list
func maskedSettings() map[string]any {
	out := map[string]any{}
	for _, s := range am.GetConfigIntrospection() {
		parts := strings.Split(s.Key, ".")
		m := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := m[p].(map[string]any)
			if !ok {
				next = map[string]any{}
				m[p] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = s.Value
	}
	return out
}

func runAmShow(cmd *cobra.Command, args []string) error {
	settings := maskedSettings()
	w := cmd.OutOrStdout()

	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Fprintln(w, string(data))

	case "yaml":
		data, err := yaml.Marshal(settings)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Fprintf(w, "# caption configuration\n%s", string(data))

	case "toml":
		data, err := toml.Marshal(settings)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Fprintf(w, "# caption configuration\n%s", string(data))

	default:
		return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}

	return nil
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	v := am.GetViper()
	if !v.IsSet(key) {
		return errors.Newf("configuration key %q not found", key)
	}

	fmt.Fprintln(cmd.OutOrStdout(), am.Get(key))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}

	pterm.Success.Println("Configuration is valid")
	available := provider.GetAvailableProviders(cfg)
	if len(available) == 0 {
		pterm.Warning.Println("No caption provider is configured yet")
		return nil
	}
	names := make([]string, len(available))
	for i, p := range available {
		names[i] = string(p)
	}
	pterm.Info.Printf("Available providers: %s (selected: %s)\n",
		strings.Join(names, ", "), provider.Select(cfg, provider.Provider(cfg.GetProviderType())))
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	settings := am.GetConfigIntrospection()

	rows := [][]string{{"Key", "Value", "Source", "From"}}
	for _, s := range settings {
		rows = append(rows, []string{s.Key, fmt.Sprint(s.Value), string(s.Source), s.SourcePath})
	}
	out, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
