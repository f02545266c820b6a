package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/brosup/gmonitor"
)

type command struct {
	global *GlobalFlags
}

func (c command) buildConsole() (*gmonitor.Console, gmonitor.FileConfig, error) {
	fc, err := gmonitor.LoadConfig(c.global.ConfigPath)
	if err != nil {
		return nil, fc, err
	}
	console, err := gmonitor.NewFromConfig(fc)
	if err != nil {
		return nil, fc, err
	}
	return console, fc, nil
}

// Login verifies credentials against the auth service and persists the
// session for later monitor runs.
func (c command) Login(f LoginFlags) error {
	password := f.Password
	if password == "" {
		fmt.Print("Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimSpace(line)
	}
	if password == "" {
		return fmt.Errorf("password is required")
	}

	console, _, err := c.buildConsole()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s, err := console.Login(ctx, f.Username, password)
	if err != nil {
		return err
	}
	fmt.Printf("Logged in as %s (session expires %s)\n", s.FullName, s.ExpiresAt.Format(time.RFC3339))
	return nil
}

// Logout clears the persisted session.
func (c command) Logout() error {
	console, _, err := c.buildConsole()
	if err != nil {
		return err
	}
	console.Logout()
	fmt.Println("Logged out")
	return nil
}

// Monitor connects with the persisted session and mirrors the fleet until
// interrupted. Notifications and state changes go to stdout.
func (c command) Monitor(f MonitorFlags) error {
	fc, err := gmonitor.LoadConfig(c.global.ConfigPath)
	if err != nil {
		return err
	}
	log := gmonitor.NewLogger(fc.Log)
	console, err := gmonitor.New(gmonitor.Options{
		ServerURL:   fc.ServerURL,
		AuthURL:     fc.AuthURL,
		SessionDir:  fc.SessionDir,
		DownloadDir: fc.DownloadDir,
		HistoryDSN:  fc.HistoryDSN,
		Policy: gmonitor.ReconnectPolicy{
			MaxAttempts: fc.Reconnect.MaxAttempts,
			Delay:       fc.Reconnect.Interval,
		},
		Logger: log,
		OnNotification: func(n gmonitor.Notification) {
			fmt.Printf("[%s] %s\n", n.Level, n.Message)
		},
		OnState: func(st gmonitor.ConnState) {
			log.Info("connection state changed", "state", st.String())
		},
	})
	if err != nil {
		return err
	}

	if err := console.Connect(); err != nil {
		return err
	}
	defer func() {
		if err := console.Close(); err != nil {
			log.Warn("close failed", "error", err)
		}
	}()

	if f.APIListen != "" {
		if err := gmonitor.RegisterMetricsDefault(); err != nil {
			log.Warn("metrics registration failed", "error", err)
		}
		srv := console.NewHTTPServer(f.APIListen, "/api")
		defer func() { _ = srv.Close() }()
		log.Info("local API listening", "addr", f.APIListen)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Println("shutting down")
	return nil
}

// Status prints fleet (or one worker's) status from a running monitor.
func (c command) Status(f StatusFlags) error {
	api := newAPIClient(f.APIUrl, f.APITimeout)
	if f.Target != "" {
		out, err := api.get("/clients/" + f.Target)
		if err != nil {
			return err
		}
		printJSON(out)
		return nil
	}
	stats, err := api.get("/stats")
	if err != nil {
		return err
	}
	clients, err := api.get("/clients")
	if err != nil {
		return err
	}
	printJSON(map[string]any{"stats": stats, "clients": clients})
	return nil
}

// Command forwards start/stop/export to a running monitor.
func (c command) Command(name string, f TargetFlags) error {
	api := newAPIClient(f.APIUrl, f.APITimeout)
	if err := api.command(name, f.Target, f.Format); err != nil {
		return err
	}
	fmt.Printf("%s sent to %s\n", name, f.Target)
	return nil
}
