// Command docchat is the interactive client for the docchat server.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"docchat/internal/cli"
	"docchat/internal/client"
	"docchat/internal/config"
	"docchat/internal/logging"
	"docchat/internal/pkg/jwtutil"
)

var (
	configPath string
	serverBin  string
	serverURL  string
)

var rootCmd = &cobra.Command{
	Use:   "docchat",
	Short: "Chat with your PDF documents",
	Long: `docchat opens an interactive menu that starts and stops the docchat
server, uploads PDFs and streams answers to your questions.

Log output of both the menu and the server goes to docchat-cli.log in the
system temp directory.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "configs/config.toml", "config file shared with the server")
	rootCmd.Flags().StringVar(&serverBin, "server-bin", "", "server executable (default from config)")
	rootCmd.Flags().StringVar(&serverURL, "server-url", "", "server base URL (default from config)")
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	if serverBin != "" {
		cfg.CLI.ServerBin = serverBin
	}
	if serverURL != "" {
		cfg.CLI.ServerURL = serverURL
	}

	logFile, err := os.OpenFile(filepath.Join(os.TempDir(), "docchat-cli.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file failed: %w", err)
	}
	defer logFile.Close()
	logging.SetupWriter(logFile, cfg.App.LogLevel, "json")

	var opts []client.Option
	if secret := cfg.Auth.JWTSecret; secret != "" {
		ttl := time.Duration(cfg.Auth.JWTExpireMinute) * time.Minute
		opts = append(opts, client.WithToken(func() (string, error) {
			return jwtutil.GenerateToken(secret, "docchat-cli", ttl)
		}))
	}
	api := client.New(cfg.CLI.ServerURL, opts...)

	var env []string
	if abs, err := filepath.Abs(configPath); err == nil {
		env = append(env, "CONFIG_FILE="+abs)
	}
	server := cli.NewServerProcess(cli.ServerOptions{
		Bin:            cfg.CLI.ServerBin,
		Env:            env,
		Output:         logFile,
		StartupTimeout: time.Duration(cfg.CLI.StartupTimeoutSeconds) * time.Second,
	}, func(ctx context.Context) error {
		_, err := api.Health(ctx)
		return err
	})
	defer func() {
		if server.Running() {
			if err := server.Stop(); err != nil {
				log.Error().Err(err).Msg("stop server failed")
			}
		}
	}()

	log.Info().Str("server_url", api.BaseURL()).Str("server_bin", cfg.CLI.ServerBin).Msg("cli started")
	_, err = tea.NewProgram(cli.New(api, server), tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
	return err
}
