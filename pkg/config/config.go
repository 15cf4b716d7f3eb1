package config

import (
	"github.com/tauraamui/edgecam/internal/config"
	"github.com/tauraamui/edgecam/pkg/configdef"
)

type CreateResolver interface {
	configdef.CreateResolver
}

func DefaultCreateResolver() CreateResolver {
	return config.DefaultCreateResolver()
}
