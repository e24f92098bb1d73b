package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type EngineConfiguration struct {
	Path            string   `json:"path" mapstructure:"path" default:""`
	PoolSize        int      `json:"pool_size" mapstructure:"pool_size" default:"8"`
	Permits         int64    `json:"permits" mapstructure:"permits" default:"4"`
	PermitTimeoutMs int      `json:"permit_timeout_ms" mapstructure:"permit_timeout_ms" default:"10000"`
	Workers         int      `json:"workers" mapstructure:"workers" default:"4"`
	QueueDepth      int      `json:"queue_depth" mapstructure:"queue_depth" default:"64"`
	InitQueries     []string `json:"init_queries" mapstructure:"init_queries" default:""`
}

type S3Configuration struct {
	Endpoint  string `json:"endpoint" mapstructure:"endpoint" default:""`
	Region    string `json:"region" mapstructure:"region" default:""`
	AccessKey string `json:"access_key" mapstructure:"access_key" default:""`
	SecretKey string `json:"secret_key" mapstructure:"secret_key" default:""`
	Secure    bool   `json:"secure" mapstructure:"secure" default:"true"`
}

type CacheConfiguration struct {
	Root     string          `json:"root" mapstructure:"root" default:"/tmp/gigaview/cache"`
	MaxBytes int64           `json:"max_bytes" mapstructure:"max_bytes" default:"10737418240"`
	TTL      int             `json:"ttl" mapstructure:"ttl" default:"60"`
	TTLUnit  string          `json:"ttl_unit" mapstructure:"ttl_unit" default:"minutes"`
	TmpDir   string          `json:"tmp_dir" mapstructure:"tmp_dir" default:""`
	S3       S3Configuration `json:"s3" mapstructure:"s3" default:""`
}

type GeoConfiguration struct {
	Precision uint `json:"precision" mapstructure:"precision" default:"9"`
}

type LogConfiguration struct {
	Level  string `json:"level" mapstructure:"level" default:"info"`
	Format string `json:"format" mapstructure:"format" default:"text"`
}

type Configuration struct {
	Engine  EngineConfiguration `json:"engine" mapstructure:"engine" default:""`
	Cache   CacheConfiguration  `json:"cache" mapstructure:"cache" default:""`
	Geo     GeoConfiguration    `json:"geo" mapstructure:"geo" default:""`
	Log     LogConfiguration    `json:"log" mapstructure:"log" default:""`
	Catalog string              `json:"catalog" mapstructure:"catalog" default:""`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.path", "")
	v.SetDefault("engine.pool_size", 8)
	v.SetDefault("engine.permits", 4)
	v.SetDefault("engine.permit_timeout_ms", 10000)
	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.queue_depth", 64)
	v.SetDefault("engine.init_queries", []string{})

	v.SetDefault("cache.root", "/tmp/gigaview/cache")
	v.SetDefault("cache.max_bytes", int64(10<<30))
	v.SetDefault("cache.ttl", 60)
	v.SetDefault("cache.ttl_unit", "minutes")
	v.SetDefault("cache.tmp_dir", "")
	v.SetDefault("cache.s3.endpoint", "")
	v.SetDefault("cache.s3.region", "")
	v.SetDefault("cache.s3.access_key", "")
	v.SetDefault("cache.s3.secret_key", "")
	v.SetDefault("cache.s3.secure", true)

	v.SetDefault("geo.precision", 9)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("catalog", "")
}

// Load reads the optional config file and GIGAVIEW_* environment overrides.
func Load(file string) (*Configuration, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("GIGAVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	cfg := &Configuration{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Configuration) Validate() error {
	if c.Engine.Permits < 1 {
		return fmt.Errorf("engine.permits must be positive, got %d", c.Engine.Permits)
	}
	if c.Engine.Workers < 1 {
		return fmt.Errorf("engine.workers must be positive, got %d", c.Engine.Workers)
	}
	if c.Engine.QueueDepth < 0 {
		return fmt.Errorf("engine.queue_depth must not be negative, got %d", c.Engine.QueueDepth)
	}
	if c.Cache.MaxBytes < 1 {
		return fmt.Errorf("cache.max_bytes must be positive, got %d", c.Cache.MaxBytes)
	}
	if _, err := c.Cache.TTLDuration(); err != nil {
		return err
	}
	if c.Geo.Precision < 1 || c.Geo.Precision > 12 {
		return fmt.Errorf("geo.precision must be within 1..12, got %d", c.Geo.Precision)
	}
	return nil
}

func (e EngineConfiguration) PermitTimeout() time.Duration {
	return time.Duration(e.PermitTimeoutMs) * time.Millisecond
}

// TTLDuration combines ttl and ttl_unit. Units accept singular, plural and
// short forms.
func (c CacheConfiguration) TTLDuration() (time.Duration, error) {
	if c.TTL <= 0 {
		return 0, fmt.Errorf("cache.ttl must be positive, got %d", c.TTL)
	}
	unit, err := ParseTimeUnit(c.TTLUnit)
	if err != nil {
		return 0, err
	}
	return time.Duration(c.TTL) * unit, nil
}

func ParseTimeUnit(unit string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "ms", "millisecond", "milliseconds":
		return time.Millisecond, nil
	case "s", "sec", "second", "seconds":
		return time.Second, nil
	case "m", "min", "minute", "minutes", "":
		return time.Minute, nil
	case "h", "hour", "hours":
		return time.Hour, nil
	case "d", "day", "days":
		return 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unknown time unit %q", unit)
}
