package api

import "time"

// APIConfig holds the HTTP server configuration.
type APIConfig struct {
	// Port is the TCP port the API listens on.
	Port int `mapstructure:"port" yaml:"port" validate:"gte=0,lte=65535"`

	// ReadTimeout bounds reading the full request, including the body.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout bounds writing the response.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout bounds how long a keep-alive connection may sit idle.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}
