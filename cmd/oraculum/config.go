package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alienxp03/oraculum/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Config file: %s\n\n", configFilePath())

		c := appConfig
		fmt.Println("Server:")
		fmt.Printf("  Port: %d\n", c.Server.Port)

		fmt.Println("\nBackend:")
		fmt.Printf("  Mode: %s\n", c.Backend.Mode)
		if c.Backend.Mode == config.ModeHTTP {
			fmt.Printf("  URL: %s\n", c.Backend.URL)
		} else {
			fmt.Printf("  Command: %s %s\n", c.Backend.Command, strings.Join(c.Backend.Args, " "))
		}
		fmt.Printf("  Timeout: %s (startup %s, %d handshake attempts)\n", c.Backend.Timeout, c.Backend.StartupTimeout, c.Backend.HandshakeAttempts)

		s := c.Simulation
		fmt.Println("\nSimulation:")
		fmt.Printf("  Workers: %d\n", s.Workers)
		fmt.Printf("  Rounds: %d (delay %s)\n", s.Rounds, s.RoundDelay)
		fmt.Printf("  History: %d entries, %d tokens\n", s.HistoryWindow, s.MaxHistoryTokens)
		fmt.Printf("  Research: %t\n", s.Research)

		fmt.Println("\nSkills:")
		scout := "disabled"
		if c.Skills.WebScout.Enabled {
			scout = c.Skills.WebScout.URL
		}
		fmt.Printf("  web_scout: %s\n", scout)
		return nil
	},
}

var forceInit bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create example config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFilePath()
		if _, err := os.Stat(path); err == nil && !forceInit {
			return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
		}

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(config.GenerateExample()), 0644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}

		fmt.Printf("Created config at: %s\n", path)
		return nil
	},
}

var configSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Write the effective configuration, environment overrides included",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFilePath()
		if err := appConfig.SaveTo(path); err != nil {
			return err
		}
		fmt.Printf("Saved config to: %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSaveCmd)
}

func configFilePath() string {
	if cfgPath != "" {
		return cfgPath
	}
	return config.DefaultConfigPath()
}
