package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/methclust/methclust/internal/cluster"
	"github.com/methclust/methclust/internal/distance"
	"github.com/methclust/methclust/internal/region"
)

// Persistent defaults for the run command, stored in ~/.methclust.yaml.
const (
	keyMetrics = "defaults.metrics"
	keyLinkage = "defaults.linkage"
	keyWindow  = "defaults.window"
	keyThreads = "defaults.threads"
	keyMinMapQ = "defaults.min-mapq"
	keyOutput  = "defaults.output"
)

// configKeys maps each settable key to its value validator, so a bad metric
// or linkage name is rejected at `config set` time rather than at the next
// run.
var configKeys = map[string]func(string) error{
	keyMetrics: func(v string) error {
		_, err := distance.ParseMetrics(v)
		return err
	},
	keyLinkage: func(v string) error {
		_, err := cluster.ParseLinkage(v)
		return err
	},
	keyWindow:  positiveIntValue,
	keyThreads: positiveIntValue,
	keyMinMapQ: nonNegativeIntValue,
	keyOutput: func(v string) error {
		if v == "" {
			return fmt.Errorf("output directory must not be empty")
		}
		return nil
	},
}

func positiveIntValue(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fmt.Errorf("expected a positive integer, got %q", v)
	}
	return nil
}

func nonNegativeIntValue(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fmt.Errorf("expected a non-negative integer, got %q", v)
	}
	return nil
}

func knownKeys() []string {
	keys := make([]string, 0, len(configKeys))
	for k := range configKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// runConfig dispatches the cobra-backed config command tree.
func runConfig(args []string) int {
	initViper()
	cmd := newConfigCmd()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitError
	}
	return ExitSuccess
}

func initViper() {
	viper.SetConfigName(".methclust")
	viper.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
	}
	// A missing config file is fine; the defaults apply.
	_ = viper.ReadInConfig()
}

// applyConfigDefaults overlays the stored defaults onto the run config and
// returns the metric and linkage flag defaults. Stored metric/linkage names
// are re-validated by the run command's own parsing, so a hand-edited config
// file cannot smuggle in an unknown name.
func applyConfigDefaults(cfg *region.Config) (metrics, linkage string) {
	metrics, linkage = "NHD", "UPGMA"
	if v := viper.GetString(keyMetrics); v != "" {
		metrics = v
	}
	if v := viper.GetString(keyLinkage); v != "" {
		linkage = v
	}
	if v := viper.GetInt64(keyWindow); v > 0 {
		cfg.WindowSize = v
	}
	if v := viper.GetInt(keyThreads); v > 0 {
		cfg.Threads = v
	}
	if viper.IsSet(keyMinMapQ) {
		cfg.MinMapQ = viper.GetInt(keyMinMapQ)
	}
	if v := viper.GetString(keyOutput); v != "" {
		cfg.OutputDir = v
	}
	return metrics, linkage
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage persistent run defaults",
		Long: "Show, get, or set the defaults the run command starts from.\n" +
			"Settable keys: " + strings.Join(knownKeys(), ", ") + ".\n" +
			"Defaults are stored in ~/.methclust.yaml.",
		Example: `  methclust config                             # show all defaults
  methclust config set defaults.linkage WARD   # cluster with Ward linkage
  methclust config set defaults.metrics NHD,L1 # compute two metrics per region
  methclust config get defaults.window`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}

	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigGetCmd())

	return cmd
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a run default",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(args[0], args[1])
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a run default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(args[0])
		},
	}
}

func runConfigShow() error {
	settings := viper.AllSettings()
	if len(settings) == 0 {
		fmt.Println("# No defaults set. Config file: ~/.methclust.yaml")
		fmt.Println("# Settable keys: " + strings.Join(knownKeys(), ", "))
		return nil
	}

	out, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

func runConfigSet(key, value string) error {
	validate, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown key %q; settable keys: %s", key, strings.Join(knownKeys(), ", "))
	}
	if err := validate(value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	viper.Set(key, value)

	cfgFile := viper.ConfigFileUsed()
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		cfgFile = filepath.Join(home, ".methclust.yaml")
	}

	if err := viper.WriteConfigAs(cfgFile); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Set %s = %s in %s\n", key, value, cfgFile)
	return nil
}

func runConfigGet(key string) error {
	if _, ok := configKeys[key]; !ok {
		return fmt.Errorf("unknown key %q; settable keys: %s", key, strings.Join(knownKeys(), ", "))
	}
	val := viper.Get(key)
	if val == nil {
		return fmt.Errorf("key %q is not set", key)
	}
	fmt.Println(val)
	return nil
}
