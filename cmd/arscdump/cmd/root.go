package cmd

import (
	"os"

	"github.com/apex/log"
	clihandler "github.com/apex/log/handlers/cli"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd is the base command when arscdump is called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "arscdump",
	Short: "Decompile and patch Android resources.arsc resource tables",
}

// Execute adds all child commands to rootCmd and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	log.SetHandler(clihandler.Default)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: arscdump.yaml searched in ., ./config, $HOME/.arscdump, /etc/arscdump)")
	rootCmd.PersistentFlags().Bool("keep-broken", false, "accept malformed chunks instead of failing")
	rootCmd.PersistentFlags().Bool("analysis-mode", false, "suppress post-decode mutations")
	rootCmd.PersistentFlags().Bool("shared-library", false, "treat package id as non-standard")
	rootCmd.PersistentFlags().Bool("sparse-resources", false, "hint that input uses sparse type-chunk encoding")

	viper.BindPFlag("keep_broken", rootCmd.PersistentFlags().Lookup("keep-broken"))
	viper.BindPFlag("analysis_mode", rootCmd.PersistentFlags().Lookup("analysis-mode"))
	viper.BindPFlag("shared_library", rootCmd.PersistentFlags().Lookup("shared-library"))
	viper.BindPFlag("sparse_resources", rootCmd.PersistentFlags().Lookup("sparse-resources"))

	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(publicizeCmd)
}
