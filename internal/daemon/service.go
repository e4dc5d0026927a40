package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/wpanctl/internal/logs"
	"github.com/danmuck/wpanctl/internal/ncp"
	"github.com/danmuck/wpanctl/internal/observability"
	"github.com/danmuck/wpanctl/internal/protocol/spinel"
	"github.com/danmuck/wpanctl/internal/runloop"
	"github.com/danmuck/wpanctl/internal/tools"
	"github.com/danmuck/wpanctl/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

var ErrTransport = errors.New("daemon: transport failure")

const (
	readBufferSize  = 4096
	shutdownTimeout = 5 * time.Second
)

// Hardware is the optional NCP power and reset wiring.
type Hardware struct {
	Power *transport.Power
	Reset *transport.ResetLine
}

// Service owns the transport, the runloop and the HTTP surface.
type Service struct {
	cfg      ServiceConfig
	tr       transport.Transport
	closers  []io.Closer
	loop     *runloop.Loop
	inst     *ncp.Instance
	ctl      *ncp.ControlInterface
	router   *gin.Engine
	logger   zerolog.Logger
	appeared time.Time
	fatal    chan error

	mu   sync.RWMutex
	addr net.Addr

	// energy collects the results of the running energy scan. Loop-owned.
	energy []spinel.EnergyResult
}

// Open builds a Service from cfg, opening the NCP socket and any side
// channels it names.
func Open(cfg ServiceConfig) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	var hw Hardware
	if path := strings.TrimSpace(cfg.PowerPath); path != "" {
		ch, err := transport.OpenSideChannel(path)
		if err != nil {
			return nil, err
		}
		closers = append(closers, ch)
		hw.Power = transport.NewPower(ch)
		hw.Power.On, hw.Power.Off = cfg.PowerOn, cfg.PowerOff
	}
	if path := strings.TrimSpace(cfg.ResetPath); path != "" {
		ch, err := transport.OpenSideChannel(path)
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, ch)
		hw.Reset = transport.NewResetLine(ch)
		hw.Reset.Begin, hw.Reset.End = cfg.ResetBegin, cfg.ResetEnd
	}

	tr, err := transport.Open(cfg.Socket, cfg.Baud)
	if err != nil {
		closeAll()
		return nil, err
	}
	s, err := New(cfg, tr, hw)
	if err != nil {
		_ = tr.Close()
		closeAll()
		return nil, err
	}
	s.closers = append(s.closers, closers...)
	return s, nil
}

// New wires a Service around an already open transport.
func New(cfg ServiceConfig, tr transport.Transport, hw Hardware) (*Service, error) {
	if tr == nil {
		return nil, ncp.ErrNoTransport
	}
	observability.RegisterMetrics()

	s := &Service{
		cfg:      cfg,
		tr:       tr,
		loop:     runloop.New(nil, 0),
		appeared: time.Now(),
		fatal:    make(chan error, 1),
		logger:   observability.InitLogger("wpanctl", cfg.Name),
	}

	opts := ncp.DefaultOptions()
	opts.Name = cfg.Name
	opts.Session = cfg.Session
	opts.Framing = cfg.Framing
	opts.AutoResume = cfg.AutoResume
	opts.AutoDeepSleep = cfg.AutoDeepSleep
	opts.AutoUpdateFirmware = cfg.AutoUpdateFirmware
	opts.TerminateOnFault = cfg.TerminateOnFault
	opts.Power = hw.Power
	opts.Reset = hw.Reset
	opts.Clock = s.loop.Clock()
	opts.OnFatal = s.signalFatal

	var fw *tools.Firmware
	if strings.TrimSpace(cfg.FirmwareUpgradeCommand) != "" {
		fw = tools.NewFirmware(cfg.FirmwareCheckCommand, cfg.FirmwareUpgradeCommand)
		opts.Upgrader = fw
	}

	inst, err := ncp.New(tr, opts)
	if err != nil {
		return nil, err
	}
	s.inst = inst
	if fw != nil {
		fw.Post = s.loop.Post
		fw.Finish = inst.FinishUpgrade
	}
	s.ctl = ncp.NewControlInterface(inst, s.loop)
	inst.AddListener(ncp.Listener{
		StateChanged: func(state ncp.NCPState) {
			logs.Infof("daemon.Service state name=%s state=%s", cfg.Name, state)
		},
		EnergyScanResult: func(r spinel.EnergyResult) {
			s.energy = append(s.energy, r)
		},
	})

	s.router = s.newRouter()
	s.RegisterRoutes()
	return s, nil
}

func (s *Service) Control() *ncp.ControlInterface { return s.ctl }
func (s *Service) HTTPRouter() *gin.Engine        { return s.router }

// Addr is the bound HTTP address, nil until Serve is listening.
func (s *Service) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Run serves until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

// Serve drives the NCP until ctx ends or the driver reports a fatal error.
func (s *Service) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.close()

	var srv *http.Server
	errs := make(chan error, 2)
	if strings.TrimSpace(s.cfg.ListenAddr) != "" {
		ln, err := net.Listen("tcp", s.cfg.ListenAddr)
		if err != nil {
			return fmt.Errorf("daemon: listen %s: %w", s.cfg.ListenAddr, err)
		}
		s.mu.Lock()
		s.addr = ln.Addr()
		s.mu.Unlock()
		srv = &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := s.serveHTTP(srv, ln); err != nil {
				errs <- err
			}
		}()
		logs.Infof("daemon.Service.Serve http listen=%s tls=%t", ln.Addr(), s.cfg.TLS.Enabled)
	}

	go func() {
		if err := s.loop.Run(ctx, s.inst.Step); err != nil && !errors.Is(err, context.Canceled) {
			errs <- err
		}
	}()
	go s.readLoop(ctx)

	logs.Infof("daemon.Service.Serve ready name=%s transport=%s", s.cfg.Name, s.tr.Name())

	var err error
	select {
	case <-ctx.Done():
	case err = <-s.fatal:
		logs.Errf("daemon.Service.Serve fatal err=%v", err)
	case err = <-errs:
		logs.Errf("daemon.Service.Serve stopped err=%v", err)
	}
	cancel()

	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			logs.Warnf("daemon.Service.Serve http shutdown err=%v", serr)
		}
	}
	return err
}

func (s *Service) serveHTTP(srv *http.Server, ln net.Listener) error {
	var err error
	if s.cfg.TLS.Enabled {
		tlsCfg, cerr := s.serverTLSConfig()
		if cerr != nil {
			_ = ln.Close()
			return cerr
		}
		srv.TLSConfig = tlsCfg
		err = srv.ServeTLS(ln, "", "")
	} else {
		err = srv.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// readLoop posts every inbound chunk onto the loop in arrival order.
func (s *Service) readLoop(ctx context.Context) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := s.tr.Read(buf)
		if n > 0 {
			p := append([]byte(nil), buf[:n]...)
			if perr := s.loop.Post(func() { s.inst.Feed(p) }); perr != nil {
				return
			}
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return
			}
			s.signalFatal(fmt.Errorf("%w: read: %v", ErrTransport, err))
			return
		}
	}
}

func (s *Service) signalFatal(err error) {
	select {
	case s.fatal <- err:
	default:
	}
}

func (s *Service) close() {
	if err := s.tr.Close(); err != nil {
		logs.Warnf("daemon.Service.close transport err=%v", err)
	}
	for _, c := range s.closers {
		_ = c.Close()
	}
}
