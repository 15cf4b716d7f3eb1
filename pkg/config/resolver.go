package config

import (
	"github.com/tauraamui/edgecam/internal/config"
	"github.com/tauraamui/edgecam/pkg/configdef"
)

type Resolver interface {
	configdef.Resolver
}

func DefaultResolver() Resolver {
	return config.DefaultResolver()
}
