// Package cmd implements the wimfuse CLI: a cobra command tree with
// "mount" and "unmount" subcommands whose config is set by pflag-bound
// flags over cfg.Default(), following the teacher's cobra/viper
// root-command pattern. initConfig registers the WIMFUSE_ environment
// prefix with viper, but no viper value is read back into the config and
// no config file is loaded.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wimfuse/wimfuse/cfg"
)

var config = cfg.Default()

var rootCmd = &cobra.Command{
	Use:   "wimfuse",
	Short: "Mount a WIM image as a copy-on-write FUSE filesystem",
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(mountCmd, unmountCmd)

	config.BindFlags(mountCmd.Flags())
	config.BindFlags(unmountCmd.Flags())
}

func initConfig() {
	viper.SetEnvPrefix("WIMFUSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// Execute runs the root command; it is the package's single exported
// entry point, called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
