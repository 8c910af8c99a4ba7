package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/velocitycareerlabs/data-loader/internal/utils"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "data-loader",
	Short: "Batch tooling for the Velocity credential agent.",
	Long: `data-loader drives batch credential issuing against a credential
agent: it reads a CSV of recipients, renders one credential offer per
row from a template, and creates the matching disclosure, exchanges and
offers on the agent's operator API.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.data-loader.yaml)")
	rootCmd.PersistentFlags().StringP("loglevel", "", "info", "Set log level. Available: debug, info, warn, error, fatal")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".data-loader")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	// A config file is optional; it only provides defaults.
	_ = viper.ReadInConfig()

	viper.SetDefault("endpoint", "")
	viper.SetDefault("authtoken", "")
	viper.SetDefault("historydb", "")

	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}
