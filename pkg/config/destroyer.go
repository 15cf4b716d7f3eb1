package config

import (
	"github.com/tauraamui/edgecam/internal/config"
	"github.com/tauraamui/edgecam/pkg/configdef"
)

type Destroyer interface {
	configdef.Destroyer
}

func DefaultDestroyer() Destroyer {
	return config.DefaultDestroyer()
}
