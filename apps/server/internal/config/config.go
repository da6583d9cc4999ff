package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"deepwell-rpc/apps/server/internal/gateway"
	"deepwell-rpc/apps/server/internal/logging"
)

const (
	configType = "toml"
	envPrefix  = "DEEPWELL"

	DefaultPort             = 2747
	DefaultWebSocketAddress = ":2748"
	DefaultMetricsAddress   = ":2749"
	DefaultDatabaseURL      = "memory"
)

const (
	keyLogLevel          = "app.log-level"
	keyUseIPv6           = "network.use-ipv6"
	keyPort              = "network.port"
	keyWebSocketAddress  = "network.websocket-address"
	keyMetricsAddress    = "network.metrics-address"
	keyDatabaseURL       = "data.database-url"
	keyPasswordBlacklist = "security.password-blacklist-file"
	keySessionTTL        = "security.session-ttl"
	keyQueueCapacity     = "gateway.queue-capacity"
	keyShutdown          = "gateway.shutdown"
	keyShutdownTimeout   = "gateway.shutdown-timeout"
	keyRequestTimeout    = "gateway.request-timeout"
	keyOTLPEndpoint      = "telemetry.otlp-endpoint"
)

type Config struct {
	LogLevel zerolog.Level

	UseIPv6          bool
	Port             uint16
	WebSocketAddress string
	MetricsAddress   string

	DatabaseURL string

	PasswordBlacklistFile string
	SessionTTL            time.Duration

	QueueCapacity   int
	Shutdown        gateway.ShutdownMode
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration

	OTLPEndpoint string
}

// Load reads the TOML file at path. An empty path uses defaults only. Every key
// can be overridden from the environment, e.g. DEEPWELL_DATA_DATABASE_URL.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType(configType)
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil, fmt.Errorf("config file %s not found", path)
			}
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyUseIPv6, false)
	v.SetDefault(keyPort, DefaultPort)
	v.SetDefault(keyWebSocketAddress, DefaultWebSocketAddress)
	v.SetDefault(keyMetricsAddress, DefaultMetricsAddress)
	v.SetDefault(keyDatabaseURL, DefaultDatabaseURL)
	v.SetDefault(keyPasswordBlacklist, "")
	v.SetDefault(keySessionTTL, "720h")
	v.SetDefault(keyQueueCapacity, 0)
	v.SetDefault(keyShutdown, "graceful")
	v.SetDefault(keyShutdownTimeout, "30s")
	v.SetDefault(keyRequestTimeout, "10s")
	v.SetDefault(keyOTLPEndpoint, "")
}

func fromViper(v *viper.Viper) (*Config, error) {
	level, err := logging.ParseLevel(v.GetString(keyLogLevel))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", keyLogLevel, err)
	}

	port := v.GetInt(keyPort)
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%s: %d is not a valid port", keyPort, port)
	}

	shutdown, err := gateway.ParseShutdownMode(v.GetString(keyShutdown))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", keyShutdown, err)
	}

	capacity := v.GetInt(keyQueueCapacity)
	if capacity < 0 {
		return nil, fmt.Errorf("%s: must not be negative", keyQueueCapacity)
	}

	cfg := &Config{
		LogLevel:              level,
		UseIPv6:               v.GetBool(keyUseIPv6),
		Port:                  uint16(port),
		WebSocketAddress:      strings.TrimSpace(v.GetString(keyWebSocketAddress)),
		MetricsAddress:        strings.TrimSpace(v.GetString(keyMetricsAddress)),
		DatabaseURL:           strings.TrimSpace(v.GetString(keyDatabaseURL)),
		PasswordBlacklistFile: strings.TrimSpace(v.GetString(keyPasswordBlacklist)),
		QueueCapacity:         capacity,
		Shutdown:              shutdown,
		OTLPEndpoint:          strings.TrimSpace(v.GetString(keyOTLPEndpoint)),
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("%s is required", keyDatabaseURL)
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{keySessionTTL, &cfg.SessionTTL},
		{keyShutdownTimeout, &cfg.ShutdownTimeout},
		{keyRequestTimeout, &cfg.RequestTimeout},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(v.GetString(d.key))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("%s: must be positive", d.key)
		}
		*d.dst = parsed
	}

	return cfg, nil
}

// Address is the gRPC listen address, on all interfaces.
func (c *Config) Address() string {
	host := "0.0.0.0"
	if c.UseIPv6 {
		host = "::"
	}
	return net.JoinHostPort(host, strconv.Itoa(int(c.Port)))
}

type fileApp struct {
	LogLevel string `toml:"log-level"`
}

type fileNetwork struct {
	UseIPv6          bool   `toml:"use-ipv6"`
	Port             uint16 `toml:"port"`
	WebSocketAddress string `toml:"websocket-address"`
	MetricsAddress   string `toml:"metrics-address"`
}

type fileData struct {
	DatabaseURL string `toml:"database-url"`
}

type fileSecurity struct {
	PasswordBlacklistFile string `toml:"password-blacklist-file"`
	SessionTTL            string `toml:"session-ttl"`
}

type fileGateway struct {
	QueueCapacity   int    `toml:"queue-capacity"`
	Shutdown        string `toml:"shutdown"`
	ShutdownTimeout string `toml:"shutdown-timeout"`
	RequestTimeout  string `toml:"request-timeout"`
}

type fileTelemetry struct {
	OTLPEndpoint string `toml:"otlp-endpoint"`
}

type file struct {
	App       fileApp       `toml:"app"`
	Network   fileNetwork   `toml:"network"`
	Data      fileData      `toml:"data"`
	Security  fileSecurity  `toml:"security"`
	Gateway   fileGateway   `toml:"gateway"`
	Telemetry fileTelemetry `toml:"telemetry"`
}

// TOML renders the effective configuration in the config file format.
func (c *Config) TOML() ([]byte, error) {
	level := c.LogLevel.String()
	if c.LogLevel == zerolog.Disabled {
		level = "off"
	}
	out, err := toml.Marshal(file{
		App: fileApp{LogLevel: level},
		Network: fileNetwork{
			UseIPv6:          c.UseIPv6,
			Port:             c.Port,
			WebSocketAddress: c.WebSocketAddress,
			MetricsAddress:   c.MetricsAddress,
		},
		Data: fileData{DatabaseURL: c.DatabaseURL},
		Security: fileSecurity{
			PasswordBlacklistFile: c.PasswordBlacklistFile,
			SessionTTL:            c.SessionTTL.String(),
		},
		Gateway: fileGateway{
			QueueCapacity:   c.QueueCapacity,
			Shutdown:        c.Shutdown.String(),
			ShutdownTimeout: c.ShutdownTimeout.String(),
			RequestTimeout:  c.RequestTimeout.String(),
		},
		Telemetry: fileTelemetry{OTLPEndpoint: c.OTLPEndpoint},
	})
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return out, nil
}
