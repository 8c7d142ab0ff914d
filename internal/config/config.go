package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultPort is the collector's gRPC port.
const DefaultPort = "50051"

// EnvPrefix prefixes environment overrides, e.g. COINFLIPPER_STORAGE_PATH.
const EnvPrefix = "COINFLIPPER"

// ErrMissingServer is returned when a client command has no collector address.
var ErrMissingServer = errors.New("missing collector address argument")

// Server holds configuration for the collector.
type Server struct {
	ListenAddr            string
	MaxReceiveMessageSize int

	StoragePath string
	S3Bucket    string
	S3Prefix    string
	RedisAddr   string
	RedisPrefix string

	PersistInterval time.Duration
	TallyWindow     time.Duration
	MetricsAddr     string
	LogLevel        string
	GracefulTimeout time.Duration
}

// Flipper holds configuration for a worker.
type Flipper struct {
	Server          string
	Threads         int
	Tick            time.Duration
	BackoffInitial  time.Duration
	BackoffMax      time.Duration
	SendTimeout     time.Duration
	MetricsAddr     string
	LogLevel        string
	GracefulTimeout time.Duration
}

// Client holds configuration for the status and export commands.
type Client struct {
	Server   string
	Timeout  time.Duration
	Format   string
	LogLevel string
}

func newViper(fs *pflag.FlagSet) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(fs)

	return v
}

// RegisterServerFlags registers collector flags on fs and returns a reader
// that captures them (plus environment overrides) after fs.Parse().
func RegisterServerFlags(fs *pflag.FlagSet) func() (Server, error) {
	fs.String("listen", "[::]:"+DefaultPort, "The listen address")
	fs.Int("max-receive-message-size", 16*1024*1024, "The max message size in bytes the server can receive")
	fs.String("storage-path", ".", "Directory for filesystem storage")
	fs.String("s3-bucket", "", "S3 bucket for remote storage")
	fs.String("s3-prefix", "", "S3 key prefix (e.g. \"coinflipper/\")")
	fs.String("redis-addr", "", "Redis address for key-value storage")
	fs.String("redis-prefix", "coinflipper/", "Redis key prefix")
	fs.Duration("persist-interval", 5*time.Minute, "Interval between state snapshots")
	fs.Duration("tally-window", 10*time.Second, "Trailing window for per-client throughput")
	fs.String("metrics-addr", "", "Address for the Prometheus /metrics endpoint (empty = disabled)")
	fs.String("log-level", "info", "Log level: debug|info|warn|error")
	fs.Duration("graceful-timeout", 10*time.Second, "Graceful shutdown timeout")

	v := newViper(fs)

	return func() (Server, error) {
		cfg := Server{
			ListenAddr:            v.GetString("listen"),
			MaxReceiveMessageSize: v.GetInt("max-receive-message-size"),
			StoragePath:           v.GetString("storage-path"),
			S3Bucket:              v.GetString("s3-bucket"),
			S3Prefix:              v.GetString("s3-prefix"),
			RedisAddr:             v.GetString("redis-addr"),
			RedisPrefix:           v.GetString("redis-prefix"),
			PersistInterval:       v.GetDuration("persist-interval"),
			TallyWindow:           v.GetDuration("tally-window"),
			MetricsAddr:           v.GetString("metrics-addr"),
			LogLevel:              v.GetString("log-level"),
			GracefulTimeout:       v.GetDuration("graceful-timeout"),
		}

		if cfg.S3Prefix != "" && cfg.S3Bucket == "" {
			return cfg, errors.New("--s3-prefix requires --s3-bucket")
		}

		if cfg.PersistInterval <= 0 || cfg.TallyWindow <= 0 {
			return cfg, errors.New("--persist-interval and --tally-window must be positive")
		}

		return cfg, nil
	}
}

// RegisterFlipperFlags registers worker flags on fs. The collector address is
// the first positional argument.
func RegisterFlipperFlags(fs *pflag.FlagSet) func() (Flipper, error) {
	fs.IntP("threads", "j", 0, "Number of generator threads (0 = number of CPUs)")
	fs.Duration("tick", time.Second, "Interval between drains of local results")
	fs.Duration("backoff-initial", time.Second, "Initial reconnect backoff")
	fs.Duration("backoff-max", 30*time.Second, "Maximum reconnect backoff")
	fs.Duration("send-timeout", 10*time.Second, "Timeout for connecting and for each batch submission")
	fs.String("metrics-addr", "", "Address for the Prometheus /metrics endpoint (empty = disabled)")
	fs.String("log-level", "info", "Log level: debug|info|warn|error")
	fs.Duration("graceful-timeout", 10*time.Second, "Time allowed to flush queued batches on shutdown")

	v := newViper(fs)

	return func() (Flipper, error) {
		cfg := Flipper{
			Threads:         v.GetInt("threads"),
			Tick:            v.GetDuration("tick"),
			BackoffInitial:  v.GetDuration("backoff-initial"),
			BackoffMax:      v.GetDuration("backoff-max"),
			SendTimeout:     v.GetDuration("send-timeout"),
			MetricsAddr:     v.GetString("metrics-addr"),
			LogLevel:        v.GetString("log-level"),
			GracefulTimeout: v.GetDuration("graceful-timeout"),
		}

		if fs.NArg() < 1 {
			return cfg, ErrMissingServer
		}

		cfg.Server = NormalizeAddr(fs.Arg(0))

		if cfg.Threads < 0 {
			return cfg, fmt.Errorf("invalid thread count %d", cfg.Threads)
		}

		if cfg.Tick <= 0 || cfg.BackoffInitial <= 0 || cfg.BackoffMax < cfg.BackoffInitial {
			return cfg, errors.New("--tick and --backoff-initial must be positive and --backoff-max >= --backoff-initial")
		}

		return cfg, nil
	}
}

// RegisterClientFlags registers flags for the one-shot status and export
// commands. withFormat adds --format for export.
func RegisterClientFlags(fs *pflag.FlagSet, withFormat bool) func() (Client, error) {
	fs.Duration("timeout", 10*time.Second, "Timeout for the status query")
	fs.String("log-level", "warn", "Log level: debug|info|warn|error")

	if withFormat {
		fs.String("format", "raw", "Export format: raw|json")
	}

	v := newViper(fs)

	return func() (Client, error) {
		cfg := Client{
			Timeout:  v.GetDuration("timeout"),
			Format:   v.GetString("format"),
			LogLevel: v.GetString("log-level"),
		}

		if fs.NArg() < 1 {
			return cfg, ErrMissingServer
		}

		cfg.Server = NormalizeAddr(fs.Arg(0))

		switch cfg.Format {
		case "", "raw", "json":
		default:
			return cfg, fmt.Errorf("unknown export format %q", cfg.Format)
		}

		return cfg, nil
	}
}

// NormalizeAddr appends DefaultPort to a bare host.
func NormalizeAddr(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}

	return net.JoinHostPort(strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]"), DefaultPort)
}
