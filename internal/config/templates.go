package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/danmuck/wpanctl/internal/daemon"
	"github.com/pelletier/go-toml/v2"
)

var ErrExists = errors.New("config: file already exists")

// FromService renders cfg in file form, durations as duration strings.
func FromService(cfg daemon.ServiceConfig) File {
	s := cfg.Session
	return File{
		Name:                   cfg.Name,
		LogLevel:               cfg.LogLevel,
		Socket:                 cfg.Socket,
		Baud:                   cfg.Baud,
		Framing:                string(cfg.Framing),
		PowerPath:              cfg.PowerPath,
		ResetPath:              cfg.ResetPath,
		PowerOn:                string(cfg.PowerOn),
		PowerOff:               string(cfg.PowerOff),
		ResetBegin:             string(cfg.ResetBegin),
		ResetEnd:               string(cfg.ResetEnd),
		AutoResume:             cfg.AutoResume,
		AutoDeepSleep:          cfg.AutoDeepSleep,
		AutoUpdateFirmware:     cfg.AutoUpdateFirmware,
		TerminateOnFault:       cfg.TerminateOnFault,
		FailureThreshold:       s.FailureThreshold,
		AutoDeepSleepTimeout:   s.AutoDeepSleepTimeout.String(),
		SendTimeout:            s.SendTimeout.String(),
		ResponseTimeout:        s.ResponseTimeout.String(),
		TickleTimeout:          s.TickleTimeout.String(),
		DeepSleepTickleTimeout: s.DeepSleepTickleTimeout.String(),
		JoinTimeout:            s.JoinTimeout.String(),
		FormTimeout:            s.FormTimeout.String(),
		ScanTimeout:            s.ScanTimeout.String(),
		FirmwareCheckCommand:   cfg.FirmwareCheckCommand,
		FirmwareUpgradeCommand: cfg.FirmwareUpgradeCommand,
		Listen:                 cfg.ListenAddr,
		CORSOrigins:            cfg.CORSOrigins,
		APIToken:               cfg.APIToken,
		TLS: TLSFile{
			Enabled:  cfg.TLS.Enabled,
			Mutual:   cfg.TLS.Mutual,
			CertFile: cfg.TLS.CertFile,
			KeyFile:  cfg.TLS.KeyFile,
			CAFile:   cfg.TLS.CAFile,
		},
	}
}

// Template is the default daemon config as TOML.
func Template() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# wpanctl daemon configuration\n\n")
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(FromService(daemon.DefaultServiceConfig())); err != nil {
		return nil, fmt.Errorf("encode template: %w", err)
	}
	return buf.Bytes(), nil
}

func WriteTemplate(path string, overwrite bool) error {
	data, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate rejects unknown keys, then loads path and checks the result.
func Validate(path string) (daemon.ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return daemon.ServiceConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var strict File
	if err := dec.Decode(&strict); err != nil {
		var missing *toml.StrictMissingError
		if errors.As(err, &missing) {
			return daemon.ServiceConfig{}, fmt.Errorf("config parse failed (%s): %s", path, missing.String())
		}
		return daemon.ServiceConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}

	cfg, err := Decode(string(data))
	if err != nil {
		return daemon.ServiceConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return daemon.ServiceConfig{}, err
	}
	return cfg, nil
}
