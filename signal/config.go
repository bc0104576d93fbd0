package signal

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// TransportKind selects how the client reaches signal-cli.
type TransportKind string

// Supported transport kinds.
const (
	TransportProcess TransportKind = "process"
	TransportUnix    TransportKind = "unix"
	TransportTCP     TransportKind = "tcp"
	TransportHTTP    TransportKind = "http"
)

// Config holds every tunable of the client. Zero values are filled in by
// ApplyDefaults; Validate rejects combinations that cannot work.
type Config struct {
	// Account is the registered phone number in E.164 form.
	Account string `toml:"account"`

	// Transport selects the channel kind: process, unix, tcp, or http.
	Transport TransportKind `toml:"transport"`

	// Command is the signal-cli executable (process transport).
	Command string `toml:"command"`

	// Args are extra signal-cli arguments (process transport).
	Args []string `toml:"args"`

	// DataPath is the signal-cli data directory.
	DataPath string `toml:"data_path"`

	// Address is the socket address (unix/tcp transports). Accepts
	// unix:///path, tcp://host:port, a bare path, or host:port.
	Address string `toml:"address"`

	// URL is the HTTP endpoint (http transport).
	URL string `toml:"url"`

	// CallTimeout is the per-call deadline.
	CallTimeout time.Duration `toml:"call_timeout"`

	// ReconnectBase is the first reconnect delay; subsequent attempts
	// double it.
	ReconnectBase time.Duration `toml:"reconnect_base"`

	// MaxReconnectAttempts caps automatic reconnection.
	MaxReconnectAttempts int `toml:"max_reconnect_attempts"`

	// MinRequestInterval paces outgoing calls.
	MinRequestInterval time.Duration `toml:"min_request_interval"`

	// MaxConcurrentRequests caps in-flight calls. Zero means unlimited.
	MaxConcurrentRequests int `toml:"max_concurrent_requests"`
}

// Default configuration values.
const (
	defaultCallTimeout          = 60 * time.Second
	defaultReconnectBase        = time.Second
	defaultMaxReconnectAttempts = 5
)

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Transport == "" {
		c.Transport = TransportProcess
	}
	if c.Command == "" {
		c.Command = "signal-cli"
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = defaultCallTimeout
	}
	if c.ReconnectBase == 0 {
		c.ReconnectBase = defaultReconnectBase
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
}

// Validate rejects configurations that cannot produce a working client.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportProcess:
		if c.Command == "" {
			return &ValidationError{Field: "command", Reason: "required for process transport"}
		}
	case TransportUnix, TransportTCP:
		if c.Address == "" {
			return &ValidationError{Field: "address", Reason: fmt.Sprintf("required for %s transport", c.Transport)}
		}
	case TransportHTTP:
		if c.URL == "" {
			return &ValidationError{Field: "url", Reason: "required for http transport"}
		}
	default:
		return &ValidationError{Field: "transport", Reason: fmt.Sprintf("unknown kind %q", c.Transport)}
	}

	if c.Account != "" {
		if err := ValidatePhoneNumber(c.Account); err != nil {
			return &ValidationError{Field: "account", Reason: err.Error()}
		}
	}
	if c.CallTimeout < 0 {
		return &ValidationError{Field: "call_timeout", Reason: "must not be negative"}
	}
	if c.MaxReconnectAttempts < 0 {
		return &ValidationError{Field: "max_reconnect_attempts", Reason: "must not be negative"}
	}
	return nil
}

// LoadConfig reads a TOML config file, applies defaults, and validates.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
