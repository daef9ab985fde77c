package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"serialbridge/pkg/bridge"
	"serialbridge/pkg/bus"
	"serialbridge/pkg/config"
	"serialbridge/pkg/serialport"
	"serialbridge/pkg/session"
)

// Deps are the host-facing hooks of the service. Zero values use the real
// serial driver and systemd notification.
type Deps struct {
	OpenPort  func(serialport.Options) (serialport.Port, error)
	ListPorts func() ([]string, error)
	Notify    func(state string)
}

// Service owns the serial device, the cloud session and the bridge between
// them. NewService performs every startup step; Run only reacts to events.
type Service struct {
	cfg     *config.Config
	log     *slog.Logger
	port    serialport.Port
	session session.Session
	bus     *bus.MessageBus
	bridge  *bridge.Controller
	notify  func(string)

	closeOnce sync.Once

	mu          sync.RWMutex
	startedAt   time.Time
	serialOpen  bool
	lastEventAt map[bus.EventType]time.Time
}

// NewService opens the device, connects the session and registers the
// bridge handlers. Any error is a startup failure.
func NewService(ctx context.Context, cfg *config.Config, sess session.Session, deps Deps, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if sess == nil {
		return nil, errors.New("session is required")
	}
	if log == nil {
		log = slog.Default()
	}
	deps = deps.withDefaults()
	log = log.With("component", "gateway.service")

	logAvailablePorts(log, deps.ListPorts)

	log.Info("Opening port", "port", cfg.Serial.Port, "baud", cfg.Serial.Baud, "driver", cfg.Serial.Driver)
	port, err := deps.OpenPort(serialport.Options{
		Name:   cfg.Serial.Port,
		Baud:   cfg.Serial.Baud,
		Driver: cfg.Serial.Driver,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port: %w", err)
	}

	if cfg.Serial.FlushEnabled() {
		if err := serialport.Flush(port); err != nil {
			log.Warn("Failed to flush serial input", "error", err)
		}
	}
	log.Info("Port opened", "port", cfg.Serial.Port)

	if err := sess.Connect(ctx); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("connect %s session: %w", sess.Name(), err)
	}

	reader := serialport.NewLineReader(port, delimiter(cfg.Serial.Delimiter))
	reader.TrimCR = cfg.Serial.TrimCR

	mb := bus.NewMessageBusSize(cfg.Bridge.QueueSize)
	ctrl, err := bridge.New(
		reader,
		serialport.NewWriter(port, cfg.Serial.Terminator),
		sess,
		mb,
		bridge.Options{
			Input:     cfg.Bridge.Input,
			Output:    cfg.Bridge.Output,
			Command:   cfg.Bridge.Command,
			ReadRetry: time.Duration(cfg.Serial.ReadRetryMillis) * time.Millisecond,
		},
		log,
	)
	if err != nil {
		_ = port.Close()
		mb.Close()
		return nil, fmt.Errorf("initialize bridge: %w", err)
	}
	ctrl.Register()

	return &Service{
		cfg:         cfg,
		log:         log,
		port:        port,
		session:     sess,
		bus:         mb,
		bridge:      ctrl,
		notify:      deps.Notify,
		serialOpen:  true,
		lastEventAt: make(map[bus.EventType]time.Time),
	}, nil
}

func (d Deps) withDefaults() Deps {
	if d.OpenPort == nil {
		d.OpenPort = serialport.Open
	}
	if d.ListPorts == nil {
		d.ListPorts = serialport.ListPorts
	}
	if d.Notify == nil {
		d.Notify = sdNotify
	}
	return d
}

// Bus exposes the event stream for observers such as the live monitor.
func (s *Service) Bus() *bus.MessageBus {
	return s.bus
}

// Run reacts to serial and session events until ctx is done. It returns an
// error only when the session or the status server stops on its own.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	events, unsubscribe := s.bus.SubscribeEvents(ctx, 0)
	defer unsubscribe()
	go s.trackEvents(events)

	errCh := make(chan error, 2)

	if s.cfg.Status.Enabled {
		status := newStatusServer(s, s.cfg.Status, s.log)
		go func() {
			if err := status.Run(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	go func() {
		err := s.session.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errors.New("session stopped")
		}
		errCh <- fmt.Errorf("run %s session: %w", s.session.Name(), err)
	}()

	go func() { _ = s.bridge.Run(ctx) }()

	s.notify(daemon.SdNotifyReady)
	s.log.Info("Bridge started", "session", s.session.Name(), "port", s.cfg.Serial.Port)

	select {
	case <-ctx.Done():
		s.log.Info("Bridge stopping")
		return nil
	case err := <-errCh:
		return err
	}
}

// close releases the device, which also unblocks a pending serial read.
func (s *Service) close() {
	s.closeOnce.Do(func() {
		s.notify(daemon.SdNotifyStopping)

		s.mu.Lock()
		s.serialOpen = false
		s.mu.Unlock()

		if err := s.port.Close(); err != nil {
			s.log.Warn("Failed to close serial port", "error", err)
		}
		s.bus.Close()
	})
}

func (s *Service) trackEvents(events <-chan bus.Event) {
	for event := range events {
		s.mu.Lock()
		s.lastEventAt[event.Type] = event.At
		s.mu.Unlock()
	}
}

func (s *Service) isReady() bool {
	s.mu.RLock()
	open := s.serialOpen && !s.startedAt.IsZero()
	s.mu.RUnlock()

	return open && s.session.Ready()
}

func logAvailablePorts(log *slog.Logger, list func() ([]string, error)) {
	ports, err := list()
	if err != nil {
		log.Warn("Failed to list serial ports", "error", err)
		return
	}
	log.Info("Serial ports found", "ports", strings.Join(ports, ","), "count", len(ports))
}

func delimiter(value string) byte {
	if value == "" {
		return serialport.DefaultDelimiter
	}
	return value[0]
}

func sdNotify(state string) {
	_, _ = daemon.SdNotify(false, state)
}
