package env

import (
	"github.com/thatsimonsguy/battery-controller/internal/config"
)

var (
	Cfg *config.Config
)
