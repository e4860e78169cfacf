package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dhcgn/mbox-search/pager"
)

const (
	// DefaultIndexSuffix is appended to the archive's base name to form the
	// index file name.
	DefaultIndexSuffix = "-index.mbi"

	envPrefix = "MBOX_SEARCH"
)

// Config captures the options of every subcommand. Fields that a command does
// not register keep their zero value.
type Config struct {
	ArchivePath string
	Term        string

	// IndexOverride is the explicit --index path, empty when derived.
	IndexOverride string
	IndexSuffix   string

	LogLevel string
	LogDir   string

	// build
	StrictFrom bool
	BufferSize int
	Progress   bool

	// search
	PageSize int
	Width    int
	NoColor  bool

	// stats
	ReportDir string
	TopN      int

	// export
	OutPath            string
	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPass           string
	UseTLS             bool
	InsecureSkipVerify bool
	TargetFolder       string
	DryRun             bool
}

// IndexPath derives the index location for an archive: the same directory,
// the archive's base name without its extension, plus suffix.
func IndexPath(archive, suffix string) string {
	if suffix == "" {
		suffix = DefaultIndexSuffix
	}
	dir, base := filepath.Split(archive)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	return filepath.Join(dir, stem+suffix)
}

// Locate returns the index path for the configured archive, honouring an
// explicit override.
func (c Config) Locate() string {
	if c.IndexOverride != "" {
		return c.IndexOverride
	}
	return IndexPath(c.ArchivePath, c.IndexSuffix)
}

// RegisterPersistentFlags attaches the flags shared by all subcommands.
func RegisterPersistentFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "Config file (default ~/.config/mbox-search/config.yaml)")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Also write logs to a timestamped file in this directory")
	flags.String("index", "", "Index file path (default: derived from the archive path)")
	flags.String("index-suffix", DefaultIndexSuffix, "Suffix used to derive the index file name")
}

// RegisterBuildFlags attaches the flags of the build command.
func RegisterBuildFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Bool("strict-from", false, "Only split on \"From \" lines after a blank line that are followed by a header field")
	flags.Int("buffer-size", 0, "Read buffer size in bytes (default 64 KiB)")
	flags.Bool("progress", true, "Show a progress bar while scanning")
}

// RegisterSearchFlags attaches the flags of the search command.
func RegisterSearchFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Int("page-size", pager.DefaultPageSize, "Number of results per page")
	flags.Int("width", pager.DefaultWidth, "Width of the result table in columns")
	flags.Bool("no-color", false, "Disable colours and use bracket highlighting")
}

// RegisterStatsFlags attaches the flags of the stats command.
func RegisterStatsFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringP("output", "o", "", "Directory for CSV reports (no reports when empty)")
	flags.IntP("top", "t", 10, "Number of top items to display")
}

// RegisterExportFlags attaches the flags of the export command.
func RegisterExportFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("out", "", "Write matching messages to this mbox file")
	flags.String("imap-host", "", "Append matching messages to this IMAP server")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP username")
	flags.String("imap-pass", "", "IMAP password (falls back to IMAP_PASS env var)")
	flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.String("target-folder", "INBOX", "Target IMAP folder")
	flags.Bool("dry-run", false, "Report what would be exported without writing anything")
}

// LoadConfig resolves the options of cmd from, in order of precedence, the
// command line, MBOX_SEARCH_* environment variables and the config file.
// args are the positional arguments: the archive and, for search and
// export, the term.
func LoadConfig(cmd *cobra.Command, args []string) (Config, error) {
	v, err := newViper(cmd.Flags())
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		IndexOverride:      v.GetString("index"),
		IndexSuffix:        v.GetString("index-suffix"),
		LogLevel:           normalizeLevel(v.GetString("log-level")),
		LogDir:             v.GetString("log-dir"),
		StrictFrom:         v.GetBool("strict-from"),
		BufferSize:         v.GetInt("buffer-size"),
		Progress:           v.GetBool("progress"),
		PageSize:           v.GetInt("page-size"),
		Width:              v.GetInt("width"),
		NoColor:            v.GetBool("no-color"),
		ReportDir:          v.GetString("output"),
		TopN:               v.GetInt("top"),
		OutPath:            v.GetString("out"),
		IMAPHost:           v.GetString("imap-host"),
		IMAPPort:           v.GetInt("imap-port"),
		IMAPUser:           v.GetString("imap-user"),
		IMAPPass:           v.GetString("imap-pass"),
		UseTLS:             v.GetBool("use-tls"),
		InsecureSkipVerify: v.GetBool("insecure-skip-verify"),
		TargetFolder:       v.GetString("target-folder"),
		DryRun:             v.GetBool("dry-run"),
	}
	if len(args) > 0 {
		cfg.ArchivePath = args[0]
	}
	if len(args) > 1 {
		cfg.Term = args[1]
	}
	if cfg.IMAPHost != "" && cfg.IMAPPass == "" {
		cfg.IMAPPass = os.Getenv("IMAP_PASS")
	}

	if err := validateConfig(cfg, cmd.Flags()); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	path, explicit := "", false
	if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
		path, explicit = f.Value.String(), true
	} else if env := os.Getenv(envPrefix + "_CONFIG"); env != "" {
		path, explicit = env, true
	} else {
		path = defaultConfigPath()
	}
	if path == "" {
		return v, nil
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !explicit && (errors.As(err, &pathErr) || errors.As(err, &notFound)) {
			return v, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return v, nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "mbox-search", "config.yaml")
}

func normalizeLevel(level string) string {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		return "warn"
	}
	return level
}

func validateConfig(cfg Config, flags *pflag.FlagSet) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	registered := func(name string) bool { return flags.Lookup(name) != nil }

	if strings.TrimSpace(cfg.ArchivePath) == "" {
		return fmt.Errorf("an archive path is required")
	}
	if registered("page-size") && (cfg.PageSize < pager.MinPageSize || cfg.PageSize > pager.MaxPageSize) {
		return fmt.Errorf("--page-size must be between %d and %d", pager.MinPageSize, pager.MaxPageSize)
	}
	if registered("width") && cfg.Width < 40 {
		return fmt.Errorf("--width must be at least 40")
	}
	if registered("buffer-size") && cfg.BufferSize < 0 {
		return fmt.Errorf("--buffer-size must not be negative")
	}
	if registered("top") && cfg.TopN <= 0 {
		return fmt.Errorf("--top must be positive")
	}

	if registered("out") {
		if cfg.OutPath == "" && cfg.IMAPHost == "" {
			return fmt.Errorf("export needs --out or --imap-host")
		}
		if cfg.OutPath != "" && cfg.IMAPHost != "" {
			return fmt.Errorf("--out and --imap-host are mutually exclusive")
		}
		if cfg.IMAPHost != "" {
			if cfg.IMAPUser == "" {
				return fmt.Errorf("--imap-user is required")
			}
			if cfg.IMAPPass == "" && !cfg.DryRun {
				return fmt.Errorf("IMAP password must be provided via --imap-pass or IMAP_PASS env var")
			}
			if cfg.IMAPPort <= 0 || cfg.IMAPPort > 65535 {
				return fmt.Errorf("--imap-port must be between 1 and 65535")
			}
		}
	}

	return nil
}
