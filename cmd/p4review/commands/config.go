package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roasbeef/p4review/internal/config"
)

var (
	configFile  string
	configForce bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect daemon configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective daemon configuration",
	Long: `Print the configuration p4reviewd would run with from this
directory: defaults, config files, .env and environment applied in order.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write a config file with the default settings",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigInit,
}

func init() {
	configShowCmd.Flags().StringVar(&configFile, "config", "",
		"Explicit config file instead of the layered lookup")
	configInitCmd.Flags().BoolVar(&configForce, "force", false,
		"Overwrite an existing file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(nil).Load(configFile)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return outputJSON(cfg)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Print(string(data))

	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists; use --force to overwrite",
			path)
	}

	if err := config.DefaultConfig().SaveToFile(path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)

	return nil
}
