package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/wpanctl/internal/config"
	"github.com/danmuck/wpanctl/internal/daemon"
	"github.com/danmuck/wpanctl/internal/logging"
)

func main() {
	path := flag.String("config", "", "daemon config file (defaults apply when empty)")
	socket := flag.String("socket", "", "override the NCP socket")
	listen := flag.String("listen", "", "override the HTTP listen address")
	flag.Parse()

	cfg, err := loadConfig(*path)
	if err != nil {
		fail(err)
	}
	logging.ConfigureRuntime(cfg.LogLevel)
	if v := strings.TrimSpace(*socket); v != "" {
		cfg.Socket = v
	}
	if v := strings.TrimSpace(*listen); v != "" {
		cfg.ListenAddr = v
	}

	svc, err := daemon.Open(cfg)
	if err != nil {
		fail(err)
	}
	if err := svc.Run(); err != nil {
		fail(err)
	}
}

func loadConfig(path string) (daemon.ServiceConfig, error) {
	if strings.TrimSpace(path) == "" {
		return daemon.DefaultServiceConfig(), nil
	}
	return config.Load(path)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "wpanctl: %v\n", err)
	os.Exit(1)
}
