package config

import (
	"github.com/tauraamui/edgecam/internal/config"
	"github.com/tauraamui/edgecam/pkg/configdef"
)

type Creator interface {
	configdef.Creator
}

func DefaultCreator() Creator {
	return config.DefaultCreator()
}
