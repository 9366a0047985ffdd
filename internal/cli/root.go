// Package cli builds the voxkeyd command tree: the daemon itself plus
// offline model commands that operate directly on the storage root.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"voxkey/internal/config"
)

// Options holds values resolved from persistent flags and the environment.
type Options struct {
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	StorageRoot string
	CatalogFile string
}

// envStr returns the environment value for key or def when unset.
func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// splitCSV splits a comma separated list, trimming blanks and dropping empties.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NewRootCmd constructs the command tree. Output of user-facing commands
// goes to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	opts := &Options{}
	root := &cobra.Command{
		Use:           "voxkeyd",
		Short:         "Local speech-model lifecycle daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(out)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.ConfigPath, "config", envStr("VOXKEY_CONFIG", ""), "Config file (.yaml, .json or .toml); defaults VOXKEY_CONFIG")
	pf.StringVar(&opts.LogLevel, "log-level", envStr("VOXKEY_LOG_LEVEL", ""), "Log level: debug|info|warn|error (defaults VOXKEY_LOG_LEVEL or config)")
	pf.StringVar(&opts.LogFormat, "log-format", envStr("VOXKEY_LOG_FORMAT", ""), "Log format: console|json")
	pf.StringVar(&opts.StorageRoot, "storage-root", envStr("VOXKEY_STORAGE_ROOT", ""), "Directory holding models and preferences")
	pf.StringVar(&opts.CatalogFile, "catalog", envStr("VOXKEY_CATALOG", ""), "Catalog file replacing the built-in model list")

	root.AddCommand(newServeCmd(opts), newModelsCmd(opts), newConfigCmd(opts))
	return root
}

// Execute runs the command tree with os.Args and returns the process exit code.
func Execute() int {
	root := NewRootCmd(os.Stdout)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "voxkeyd: %v\n", err)
		return 1
	}
	return 0
}

// resolveConfig layers defaults < config file < environment < flags.
func resolveConfig(opts *Options) (config.Config, error) {
	var cfg config.Config
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return cfg, fmt.Errorf("load config %s: %w", opts.ConfigPath, err)
		}
		cfg = loaded
	}
	if v := os.Getenv("VOXKEY_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("VOXKEY_PREFS_BACKEND"); v != "" {
		cfg.PrefsBackend = v
	}
	if v := os.Getenv("VOXKEY_CORS_ORIGINS"); v != "" {
		cfg.CORSEnabled = true
		cfg.CORSAllowedOrigins = splitCSV(v)
	}
	if opts.StorageRoot != "" {
		cfg.StorageRoot = opts.StorageRoot
	}
	if opts.CatalogFile != "" {
		cfg.CatalogFile = opts.CatalogFile
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.LogFormat = opts.LogFormat
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newConfigCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), cfg)
		},
	}
}
