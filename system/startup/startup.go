package startup

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/thatsimonsguy/battery-controller/internal/env"
)

// UnitFile renders the systemd unit for the main service. The runtime
// directory backs the reset-surviving counter store.
func UnitFile(user, workdir, configFile string) string {
	execCmd := filepath.Join(workdir, "bin", "battery-controller")

	return fmt.Sprintf(`[Unit]
Description=Battery charge controller
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
User=%s
WorkingDirectory=%s
RuntimeDirectory=battery-controller
RuntimeDirectoryPreserve=yes
ExecStart=%s -config-file %s
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, user, workdir, execCmd, configFile)
}

func InstallService() error {
	cfg := env.Cfg
	if cfg == nil {
		return fmt.Errorf("config not loaded")
	}
	user := cfg.ServiceUser
	if user == "" {
		user = "root"
	}
	workdir := cfg.ServiceWorkdir
	if workdir == "" {
		workdir = "/opt/battery-controller"
	}
	configFile := cfg.ConfigFile
	if !filepath.IsAbs(configFile) {
		configFile = filepath.Join(workdir, configFile)
	}

	unit := UnitFile(user, workdir, configFile)
	if err := os.WriteFile(cfg.MainServicePath, []byte(unit), 0644); err != nil {
		return fmt.Errorf("write %s: %w", cfg.MainServicePath, err)
	}
	return nil
}
