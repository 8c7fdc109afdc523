package commands

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/scrapedash/am"
	"github.com/teranos/scrapedash/backend"
	"github.com/teranos/scrapedash/errors"
	"github.com/teranos/scrapedash/logger"
	"github.com/teranos/scrapedash/push"
	"github.com/teranos/scrapedash/version"
)

// ConfigPath is set by the --config flag. Empty means the merged cascade.
var ConfigPath string

var cfg *am.Config

// LoadConfig loads configuration once per process
func LoadConfig() (*am.Config, error) {
	if cfg != nil {
		return cfg, nil
	}
	loaded, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg = loaded
	return cfg, nil
}

func loadConfig() (*am.Config, error) {
	if ConfigPath != "" {
		return am.LoadFromFile(ConfigPath)
	}
	am.Reset()
	return am.Load()
}

// activeConfigFile is the file a watcher or writer should target
func activeConfigFile() string {
	if ConfigPath != "" {
		return ConfigPath
	}
	return am.ActiveConfigPath()
}

// FormatError renders err with its hints for the terminal
func FormatError(err error) string {
	msg := pterm.Red("Error: ") + err.Error()
	if hints := errors.FlattenHints(err); hints != "" {
		msg += "\n" + pterm.Yellow("Hint: ") + hints
	}
	return msg
}

func newClient(c *am.Config, verbosity int) (*backend.Client, error) {
	return backend.New(backend.Options{
		BaseURL:           c.Backend.BaseURL,
		Timeout:           c.Timeout(),
		RequestsPerMinute: c.Backend.RequestsPerMinute,
		Verbosity:         verbosity,
		Logger:            logger.ComponentLogger("backend"),
	})
}

func newDialer(c *am.Config, client *backend.Client) push.Dialer {
	header := http.Header{}
	header.Set("User-Agent", version.Get().UserAgent())
	return push.Dialer{
		URL:              client.EventsURL(),
		HandshakeTimeout: c.HandshakeTimeout(),
		Header:           header,
	}
}

// ConfigCmd groups configuration subcommands
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialise configuration",
	Long: `Show or initialise scrapedash configuration.

Configuration sources (in order of precedence):
1. Environment variables (SCRAPEDASH_* prefix, e.g. SCRAPEDASH_DASHBOARD_PAGE_SIZE)
2. Project config (nearest scrapedash.toml walking up from the working directory)
3. User config (~/.scrapedash/config.toml)
4. System config (/etc/scrapedash/config.toml)
5. Default values

A .env file in the working directory is loaded into the environment first.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := LoadConfig()
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}

		if configFormat == "json" {
			data, err := json.MarshalIndent(c, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to marshal config to JSON")
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		data, err := toml.Marshal(c)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		if path := activeConfigFile(); path != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", path)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Long:  "Write the default configuration to path (default: ~/.scrapedash/config.toml).",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := am.UserConfigPath()
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return errors.New("could not determine home directory; pass a path")
		}

		if err := am.WriteDefaults(path, configForce); err != nil {
			return err
		}
		pterm.Success.Printf("Wrote default configuration to %s\n", path)
		return nil
	},
}

var (
	configFormat string
	configForce  bool
)

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file (previous one is kept as .back1)")

	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configInitCmd)
}
