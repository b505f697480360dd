// Package cmd implements the sprintmux command line interface.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/forgeops/sprintmux/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "sprintmux",
	Short: "Sprint-to-coder orchestration engine",
	Long: `Sprintmux watches sprint status documents, assigns approved sprints to
a fixed pool of coders working in separate git clones, and shepherds
finished branches through validation, merging, and conflict repair.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/sprintmux/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.PersistentFlags().String("sprint-root", "", "directory containing sprint folders")
	_ = viper.BindPFlag("paths.sprint_root", rootCmd.PersistentFlags().Lookup("sprint-root"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/sprintmux")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SPRINTMUX")
	// Replace dots with underscores for nested keys in env vars
	// e.g., SPRINTMUX_BRANCH_TRUNK for branch.trunk
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
