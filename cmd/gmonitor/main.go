package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds minimal global/persistent flags for CLI commands
type GlobalFlags struct {
	ConfigPath string
}

// LoginFlags holds flags for the login command
type LoginFlags struct {
	Username string
	Password string
}

// MonitorFlags holds flags for the monitor command
type MonitorFlags struct {
	APIListen string
}

// TargetFlags holds flags for commands addressed to one worker
type TargetFlags struct {
	Target     string
	Format     string
	APIUrl     string
	APITimeout time.Duration
}

// StatusFlags holds flags for the status command
type StatusFlags struct {
	Target     string
	APIUrl     string
	APITimeout time.Duration
}

// buildRoot creates the root command
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	loginFlags := &LoginFlags{}
	monitorFlags := &MonitorFlags{}
	startFlags := &TargetFlags{}
	stopFlags := &TargetFlags{}
	exportFlags := &TargetFlags{}
	statusFlags := &StatusFlags{}

	cc := command{global: globalFlags}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createLoginCommand(cc, loginFlags),
		createLogoutCommand(cc),
		createMonitorCommand(cc, monitorFlags),
		createStatusCommand(cc, statusFlags),
		createStartCommand(cc, startFlags),
		createStopCommand(cc, stopFlags),
		createExportCommand(cc, exportFlags),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "gmonitor",
		Short: "Fleet monitoring console",
		Long: `gmonitor mirrors a fleet of remote worker processes over one
persistent websocket connection and lets you inspect and command them.

Examples:
  gmonitor login --username=op
  gmonitor monitor --api-listen=127.0.0.1:9321
  gmonitor status --api-url=http://127.0.0.1:9321/api
  gmonitor start --target=worker_3 --api-url=http://127.0.0.1:9321/api`,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func createLoginCommand(cc command, flags *LoginFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Verify credentials and persist a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.Login(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.Username, "username", "", "account username (required)")
	cmd.Flags().StringVar(&flags.Password, "password", "", "account password (prompted when omitted)")
	if err := cmd.MarkFlagRequired("username"); err != nil {
		panic(err)
	}
	return cmd
}

func createLogoutCommand(cc command) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the persisted session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.Logout()
		},
	}
}

func createMonitorCommand(cc command, flags *MonitorFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Connect and mirror the fleet until interrupted",
		Long: `Connect to the fleet endpoint with the persisted session and keep the
local state store synchronized. With --api-listen a read-only HTTP API
(including /metrics) is served for status/start/stop/export commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.Monitor(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.APIListen, "api-listen", "", "address for the local HTTP API (e.g. 127.0.0.1:9321)")
	return cmd
}

func createStatusCommand(cc command, flags *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show fleet status from a running monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.Status(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.Target, "target", "", "show one worker instead of the fleet")
	addAPIFlags(cmd, &flags.APIUrl, &flags.APITimeout)
	return cmd
}

func createStartCommand(cc command, flags *TargetFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Ask a worker to start processing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.Command("start", *flags)
		},
	}
	addTargetFlags(cmd, flags)
	return cmd
}

func createStopCommand(cc command, flags *TargetFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Ask a worker to stop processing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.Command("stop", *flags)
		},
	}
	addTargetFlags(cmd, flags)
	return cmd
}

func createExportCommand(cc command, flags *TargetFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Ask the server to produce an export for a worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.Command("export", *flags)
		},
	}
	addTargetFlags(cmd, flags)
	cmd.Flags().StringVar(&flags.Format, "format", "csv", "export format")
	return cmd
}

func addTargetFlags(cmd *cobra.Command, flags *TargetFlags) {
	cmd.Flags().StringVar(&flags.Target, "target", "", "worker id (required)")
	addAPIFlags(cmd, &flags.APIUrl, &flags.APITimeout)
	if err := cmd.MarkFlagRequired("target"); err != nil {
		panic(err)
	}
}

func addAPIFlags(cmd *cobra.Command, url *string, timeout *time.Duration) {
	cmd.Flags().StringVar(url, "api-url", "http://127.0.0.1:9321/api", "running monitor API URL")
	cmd.Flags().DurationVar(timeout, "api-timeout", 10*time.Second, "request timeout")
}
