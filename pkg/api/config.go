package api

import "time"

// APIConfig configures the public HTTP server.
type APIConfig struct {
	// Port is the HTTP port for media, health and admin endpoints.
	// Default: 8080
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// PublicURL is the externally visible base URL used in generated links
	// (subtitle_url, player redirects). Empty derives it from each request.
	PublicURL string `mapstructure:"public_url" validate:"omitempty,url" yaml:"public_url"`

	// ReadTimeout bounds reading the request, including the body.
	// Default: 10s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout bounds writing the response. Streams of large files run
	// far longer than any sensible value, so the default is no timeout.
	// Default: 0
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle limit.
	// Default: 120s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// AdminTimeout bounds each /api/v1 request.
	// Default: 30s
	AdminTimeout time.Duration `mapstructure:"admin_timeout" yaml:"admin_timeout"`
}

// ApplyDefaults fills in zero values.
func (c *APIConfig) ApplyDefaults() {
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 120 * time.Second
	}
	if c.AdminTimeout == 0 {
		c.AdminTimeout = 30 * time.Second
	}
}
