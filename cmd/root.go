package cmd

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AzielCF/az-wabot/core/config"
)

var rootCmd = &cobra.Command{
	Use:   "az-wabot",
	Short: "Multi-bot automation service for WhatsApp chats",
	Long: `az-wabot polls a WhatsApp HTTP gateway, dispatches new messages to
configurable bots (translation, jokes, custom types) and manages
scheduled sends, all controlled over a REST API.`,
}

func init() {
	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().String("port", "", "HTTP port for the REST API (overrides APP_PORT)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	_ = viper.BindPFlag("app_port", rootCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.AutomaticEnv()

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("[CMD] Configuration error: %v", err)
	}
	if port := viper.GetString("app_port"); port != "" {
		cfg.App.Port = port
	}
	if level := viper.GetString("log_level"); level != "" {
		cfg.App.LogLevel = level
	}
	config.Global = cfg

	parsed, err := logrus.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logrus.SetLevel(parsed)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
