package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/LinglingXiang/exodus-gw/internal/logger"
	"github.com/LinglingXiang/exodus-gw/internal/validator"
)

type MigrationMode string

const (
	// Apply revisions up to db.migration.revision
	MigrationUpgrade MigrationMode = "upgrade"
	// Create tables straight from the models. Not for production use.
	MigrationModel MigrationMode = "model"
	MigrationNone  MigrationMode = "none"
)

type ServiceConfig struct {
	User string `mapstructure:"user" validate:"required"`
	Pass string `mapstructure:"pass"`
	Host string `mapstructure:"host" validate:"required"`
	Port int    `mapstructure:"port" validate:"required,min=1,max=65535"`
}

type PoolConfig struct {
	MaxIdleConnections int           `mapstructure:"max_idle_connections" validate:"min=0"`
	MaxOpenConnections int           `mapstructure:"max_open_connections" validate:"min=0"`
	ConnectionTTL      time.Duration `mapstructure:"connection_ttl"`
}

type MigrationConfig struct {
	Mode     MigrationMode `mapstructure:"mode"     validate:"required,oneof=upgrade model none"`
	Revision string        `mapstructure:"revision" validate:"required,revision"`
}

type DBConfig struct {
	Service   *ServiceConfig   `mapstructure:"service"   validate:"required"`
	Pool      *PoolConfig      `mapstructure:"pool"      validate:"required"`
	Migration *MigrationConfig `mapstructure:"migration" validate:"required"`
	// Takes precedence over the service components when set
	URL            string        `mapstructure:"url"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"min=0"`
	Reset          bool          `mapstructure:"reset"`
}

type SlogConfig struct {
	Level string `mapstructure:"level"`
}

type GormLogConfig struct {
	Level        string `mapstructure:"level"`
	TraceQueries bool   `mapstructure:"trace_queries"`
}

type LoggingConfig struct {
	Gorm    GormLogConfig `mapstructure:"gorm"`
	App     SlogConfig    `mapstructure:"app"`
	UseOTLP bool          `mapstructure:"use_otlp"`
}

// See exodus-gw.yaml for an example config
type Config struct {
	DB                   *DBConfig      `mapstructure:"db"                     validate:"required"`
	Logging              *LoggingConfig `mapstructure:"logging"                validate:"required"`
	ListenAddress        string         `mapstructure:"listen_address"         validate:"required"`
	GracefulShutdownSecs int64          `mapstructure:"graceful_shutdown_secs"`
}

const (
	AppLogLevel          string = "logging.app.level"
	DBConnectTimeout     string = "db.connect_timeout"
	DBConnectionTTL      string = "db.pool.connection_ttl"
	DBMaxIdleConnections string = "db.pool.max_idle_connections"
	DBMaxOpenConnections string = "db.pool.max_open_connections"
	DBMigrationMode      string = "db.migration.mode"
	DBMigrationRevision  string = "db.migration.revision"
	DBReset              string = "db.reset"
	DBServiceHost        string = "db.service.host"
	DBServicePass        string = "db.service.pass" // #nosec
	DBServicePort        string = "db.service.port"
	DBServiceUser        string = "db.service.user"
	DBURL                string = "db.url"
	EnvPrefix            string = "exodus_gw"
	GormLogLevel         string = "logging.gorm.level"
	GormTraceQueries     string = "logging.gorm.trace_queries"
	GracefulShutdownSecs string = "graceful_shutdown_secs"
	ListenAddress        string = "listen_address"
	UseOTLP              string = "logging.use_otlp"
)

// Searched in order when no directory is given
var DefaultPaths = []string{"/etc/exodus-gw/", "."}

// Reads exodus-gw.yaml from the first of paths that has one, then the
// environment. Every key can be set as EXODUS_GW_<KEY> with dots as
// underscores, e.g. EXODUS_GW_DB_URL.
func Load(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		paths = DefaultPaths
	}
	logger.Logger.Debug("loading config", "paths", paths)

	v := viper.New()

	v.SetConfigName("exodus-gw")
	for _, path := range paths {
		v.AddConfigPath(path)
	}
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.AutomaticEnv()

	// workaround for https://github.com/spf13/viper/issues/761
	// bind env vars explicitly so they unmarshal into the nested struct
	for _, key := range []string{DBURL, DBServicePass} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	v.SetDefault(DBServiceUser, "exodus-gw")
	v.SetDefault(DBServicePass, "exodus-gw")
	v.SetDefault(DBServiceHost, "exodus-gw-db")
	v.SetDefault(DBServicePort, 5432)
	v.SetDefault(DBMaxIdleConnections, 2)
	v.SetDefault(DBMaxOpenConnections, 10)
	v.SetDefault(DBConnectionTTL, 10*time.Minute)
	v.SetDefault(DBConnectTimeout, 30*time.Second)
	v.SetDefault(DBReset, false)
	v.SetDefault(DBMigrationMode, string(MigrationUpgrade))
	v.SetDefault(DBMigrationRevision, "head")
	v.SetDefault(AppLogLevel, "info")
	v.SetDefault(GormLogLevel, "warn")
	v.SetDefault(GormTraceQueries, false)
	v.SetDefault(UseOTLP, false)
	v.SetDefault(ListenAddress, "[::]:8080")
	v.SetDefault(GracefulShutdownSecs, 30)

	err := v.ReadInConfig()
	if err != nil {
		// ignore config file not found to allow pure env config
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var c Config
	if err = v.Unmarshal(&c); err != nil {
		return nil, err
	}

	valid := validator.Create()
	if err = valid.Validate(&c); err != nil {
		return nil, err
	}

	for name, level := range map[string]string{AppLogLevel: c.Logging.App.Level, GormLogLevel: c.Logging.Gorm.Level} {
		if _, err := logger.ParseLevel(level); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}

	return &c, nil
}

// db.url if set, otherwise a postgres URL built from db.service. The database
// name is always the service user.
func (c *Config) DatabaseURL() string {
	if c.DB.URL != "" {
		return c.DB.URL
	}

	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(c.DB.Service.User, c.DB.Service.Pass),
		Host:   net.JoinHostPort(c.DB.Service.Host, strconv.Itoa(c.DB.Service.Port)),
		Path:   "/" + c.DB.Service.User,
	}

	return u.String()
}
