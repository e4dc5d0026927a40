package daemon

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/wpanctl/internal/protocol/frame"
	"github.com/danmuck/wpanctl/internal/protocol/session"
)

var (
	ErrSocketRequired      = errors.New("daemon: socket is required")
	ErrInvalidBaud         = errors.New("daemon: invalid baud rate")
	ErrTLSCertFileRequired = errors.New("daemon: tls cert_file is required")
	ErrTLSKeyFileRequired  = errors.New("daemon: tls key_file is required")
	ErrTLSCAFileRequired   = errors.New("daemon: tls ca_file is required for mutual tls")
)

// TLSConfig secures the HTTP status surface.
type TLSConfig struct {
	Enabled  bool
	Mutual   bool
	CertFile string
	KeyFile  string
	CAFile   string
}

// ServiceConfig configures one daemon process driving one NCP.
type ServiceConfig struct {
	Name     string
	LogLevel string
	Socket   string
	Baud     int
	Framing  frame.Framing

	PowerPath  string
	ResetPath  string
	PowerOn    byte
	PowerOff   byte
	ResetBegin byte
	ResetEnd   byte

	AutoResume         bool
	AutoDeepSleep      bool
	AutoUpdateFirmware bool
	TerminateOnFault   bool

	// FirmwareCheckCommand gets the NCP version as its last argument and
	// exits 0 when an upgrade is required.
	FirmwareCheckCommand   string
	FirmwareUpgradeCommand string

	ListenAddr  string
	CORSOrigins []string
	TLS         TLSConfig
	// APIToken, when set, is required as a bearer token on every route
	// that changes driver state.
	APIToken string

	Session session.Config
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:        "wpan0",
		Socket:      "/dev/ttyUSB0",
		Baud:        115200,
		Framing:     frame.FramingHDLC,
		PowerOn:     '1',
		PowerOff:    '0',
		ResetBegin:  '0',
		ResetEnd:    '1',
		AutoResume:  true,
		ListenAddr:  "127.0.0.1:9470",
		CORSOrigins: []string{"http://localhost:3000"},
		Session:     session.DefaultConfig(),
	}
}

// Validate reports the first unusable setting.
func (c ServiceConfig) Validate() error {
	if strings.TrimSpace(c.Socket) == "" {
		return ErrSocketRequired
	}
	if c.Baud <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBaud, c.Baud)
	}
	if _, err := frame.New(c.Framing, frame.DefaultLimits()); err != nil {
		return err
	}
	if !c.TLS.Enabled {
		return nil
	}
	if strings.TrimSpace(c.TLS.CertFile) == "" {
		return ErrTLSCertFileRequired
	}
	if strings.TrimSpace(c.TLS.KeyFile) == "" {
		return ErrTLSKeyFileRequired
	}
	if c.TLS.Mutual && strings.TrimSpace(c.TLS.CAFile) == "" {
		return ErrTLSCAFileRequired
	}
	return nil
}
