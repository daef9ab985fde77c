package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"serialbridge/pkg/bus"
	"serialbridge/pkg/config"
	"serialbridge/pkg/gateway"
	"serialbridge/pkg/logger"
	"serialbridge/pkg/session"
	"serialbridge/pkg/session/telegram"
	"serialbridge/pkg/session/ws"
	"serialbridge/pkg/ui/monitor"
)

const defaultMonitorLogFile = "serialbridge.log"

var (
	monitorMode    bool
	monitorLogFile string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the serial bridge",
	Long:  "Opens the serial device, connects the cloud session and bridges traffic until interrupted.",
	Args:  cobra.NoArgs,
	RunE:  runBridge,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&monitorMode, "monitor", false, "show a live event view instead of log lines")
	cmd.Flags().StringVar(&monitorLogFile, "log-file", defaultMonitorLogFile, "log destination while the monitor owns the terminal")
}

func runBridge(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	appLogger, closeLog, err := buildLogger(cfg, monitorMode, monitorLogFile)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer closeLog()
	slog.SetDefault(appLogger)
	log := slog.Default().With("component", "cmd.run")

	for _, warning := range cfg.Warnings {
		log.Warn("Configuration warning", "warning", warning)
	}

	sess, err := newSession(cfg, appLogger)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := gateway.NewService(runCtx, cfg, sess, gateway.Deps{}, appLogger)
	if err != nil {
		log.Error("Failed to start bridge", "error", err)
		return err
	}

	if !monitorMode {
		if err := svc.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Bridge runtime failed", "error", err)
			return err
		}
		return nil
	}

	return runWithMonitor(runCtx, svc, cfg, sess.Name())
}

// runWithMonitor runs the service in the background while the monitor owns
// the terminal. Quitting the monitor stops the bridge.
func runWithMonitor(ctx context.Context, svc *gateway.Service, cfg *config.Config, sessionName string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(ctx) }()

	info := monitor.Info{
		Session: sessionName,
		Port:    cfg.Serial.Port,
		Baud:    cfg.Serial.Baud,
		Output:  cfg.Bridge.Output,
		Input:   cfg.Bridge.Input,
		Command: cfg.Bridge.Command,
	}
	monitorErr := monitor.Run(ctx, svc.Bus(), info)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-time.After(5 * time.Second):
		return errors.New("bridge did not stop after monitor exit")
	}
	return monitorErr
}

func buildLogger(cfg *config.Config, toFile bool, path string) (*slog.Logger, func(), error) {
	if !toFile {
		log, err := logger.New(cfg.Logging)
		return log, func() {}, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	log, err := logger.NewWithWriter(cfg.Logging, file)
	if err != nil {
		_ = file.Close()
		return nil, nil, err
	}
	return log, func() { _ = file.Close() }, nil
}

// newSession builds the cloud session selected by cloud.transport.
func newSession(cfg *config.Config, log *slog.Logger) (session.Session, error) {
	switch cfg.Cloud.Transport {
	case config.TransportWebSocket:
		sess, err := ws.New(ws.Options{
			URL:               cfg.Cloud.URL,
			Token:             cfg.Cloud.Token,
			ReconnectMinDelay: time.Duration(cfg.Cloud.ReconnectMinSeconds) * time.Second,
			ReconnectMaxDelay: time.Duration(cfg.Cloud.ReconnectMaxSeconds) * time.Second,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("configure %s session: %w", cfg.Cloud.Transport, err)
		}
		return sess, nil
	case config.TransportTelegram:
		sess, err := telegram.New(cfg.Channels.Telegram, cfg.Bridge.Input, log)
		if err != nil {
			return nil, fmt.Errorf("configure %s session: %w", cfg.Cloud.Transport, err)
		}
		return sess, nil
	case config.TransportLoopback:
		sess := session.NewLoopback()
		sessLog := log.With("component", "session.loopback")
		sess.OnSend = func(out bus.Outbound) {
			sessLog.Info("Outbound message", "output", out.Output, "body", string(out.Message.Payload), "properties", len(out.Message.Properties))
		}
		return sess, nil
	default:
		return nil, fmt.Errorf("unsupported cloud transport %q", cfg.Cloud.Transport)
	}
}
