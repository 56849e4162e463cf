// Command thermostat-example runs a simulated thermostat driver and serves
// it over the driver RPC.
//
// Usage:
//
//	thermostat-example [flags]
//
// Flags:
//
//	-config string        Configuration file (.json, .yaml)
//	-listen string        RPC listen address (default $NX_DRIVER_RPC_ADDR or 127.0.0.1:7070)
//	-record string        Write every driver event to this CBOR file
//	-capabilities string  Write the capabilities descriptor to this file and exit
//	-log-level string     debug, info, warn, error (default "info")
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	drivercore "github.com/NotrixInc/nx-driver-core"
)

type cliConfig struct {
	ConfigFile   string
	Listen       string
	RecordFile   string
	Capabilities string
	LogLevel     string
}

var cli cliConfig

func init() {
	flag.StringVar(&cli.ConfigFile, "config", "", "Configuration file (.json, .yaml)")
	flag.StringVar(&cli.Listen, "listen", "", "RPC listen address (default $"+drivercore.EnvRPCAddr+" or 127.0.0.1:7070)")
	flag.StringVar(&cli.RecordFile, "record", "", "Write every driver event to this CBOR file")
	flag.StringVar(&cli.Capabilities, "capabilities", "", "Write the capabilities descriptor to this file and exit")
	flag.StringVar(&cli.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

func main() {
	flag.Parse()

	logger := drivercore.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cli.LogLevel),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("thermostat exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger drivercore.Logger) error {
	opts := []drivercore.Option{drivercore.WithLogger(logger)}
	if cli.ConfigFile != "" {
		cfg, err := drivercore.LoadConfigFile(cli.ConfigFile)
		if err != nil {
			return err
		}
		opts = append(opts, drivercore.WithConfig(cfg))
	}

	client := drivercore.NewLocalClient(drivercore.Identity{
		ID:      "thermostat-1",
		Name:    "Living room thermostat",
		Type:    "thermostat",
		Version: "1.0.0",
	})

	behavior := newThermostat()
	d, err := drivercore.New(client, behavior, opts...)
	if err != nil {
		return err
	}
	if err := d.Setup(ctx); err != nil {
		return err
	}

	if cli.Capabilities != "" {
		return writeCapabilities(d, cli.Capabilities)
	}

	if cli.RecordFile != "" {
		f, err := os.Create(cli.RecordFile)
		if err != nil {
			return fmt.Errorf("create record file: %w", err)
		}
		defer f.Close()

		rec := drivercore.NewRecorder(f, drivercore.WithRecorderLogger(logger))
		rec.Attach(d)
		defer rec.Close()
		logger.Info("recording events", "file", cli.RecordFile, "session_id", rec.SessionID())
	}

	poller := d.NewPoller(behavior.pollInterval(), behavior.poll, drivercore.PollerOptions{
		MaxConsecutiveFailures: 3,
	})
	poller.Start(ctx)
	defer poller.Stop()

	go heartbeat(ctx, client, 10*time.Second)

	addr := cli.Listen
	if addr == "" {
		if envAddr, err := drivercore.RequireHostAddrFromEnv(os.Getenv); err == nil {
			addr = envAddr
		} else {
			addr = "127.0.0.1:7070"
		}
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	return drivercore.NewActionServer(d).Serve(ctx, lis)
}

// heartbeat raises a device side event, relayed by the driver unchanged
func heartbeat(ctx context.Context, client *drivercore.LocalClient, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			client.Publish("heartbeat", map[string]any{"at_unix_ms": t.UnixMilli()})
		}
	}
}

func writeCapabilities(d *drivercore.Driver, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := drivercore.WriteCapabilities(f, d.Describe(), drivercore.FormatFromPath(path)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
