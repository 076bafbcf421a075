package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the brightspots config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective configuration to --config",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil && !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
		}
		if err := cfg.Save(configPath); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", configPath)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Validate and print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		fmt.Printf("Data source:   %s\n", cfg.DataSource)
		fmt.Printf("Themes source: %s\n", cfg.ThemesSource)
		if cfg.DeltaScoped() {
			fmt.Printf("Delta scope:   %s (record %s)\n", cfg.DeltasFolder, cfg.RecordID)
		} else {
			fmt.Println("Delta scope:   none")
		}
		fmt.Printf("Admin:         %v\n", cfg.Admin)
		fmt.Printf("Listen:        %s\n", cfg.Server.Addr)
		if cfg.Journal.Path != "" {
			fmt.Printf("Journal:       %s\n", cfg.Journal.Path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "Overwrite an existing config file")
}
