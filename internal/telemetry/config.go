package telemetry

// Config holds OpenTelemetry configuration
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP gRPC endpoint, e.g. "localhost:4317"
	Endpoint string

	// Insecure disables TLS to the collector
	Insecure bool

	// SampleRate is the trace sampling ratio in [0, 1]
	SampleRate float64
}

// DefaultConfig returns a disabled configuration with sane values.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "relaystream",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}
