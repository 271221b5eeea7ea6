package core

import (
	"fmt"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	MinSecretLength  = 32
	MinKDFIterations = 100000

	DefaultServerWriteTimeout = 10 * time.Second

	// MemoryEngine keeps all data in process memory. Meant for local runs without Postgres.
	MemoryEngine = "memory"
)

type (
	ServerConfig struct {
		Host            string
		Port            string
		DebugHost       string
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
		BodyLimit       string // echo format, e.g. "2M"
		UploadMaxBytes  int64
		DisableReqLogs  bool
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		Address  string
		Password string
		DB       int
	}

	Config struct {
		AppName  string
		Env      string
		Build    string
		Debug    bool
		TestMode bool
		WorkDir  string

		// SecretKey signs session tokens, EncryptionKey seals field envelopes.
		SecretKey     string
		EncryptionKey string
		KDFIterations int

		AccessTokenTTL   time.Duration
		RefreshTokenTTL  time.Duration
		PasswordResetTTL time.Duration

		DefaultFromEmail mail.Address
		FrontendBaseURL  string
		RollbarToken     string
		SendgridApiKey   string

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
	}
)

// InMemory reports whether data is kept in process memory instead of Postgres.
func (c DatabaseConfig) InMemory() bool {
	return c.Engine == MemoryEngine
}

// Address returns the database "host:port".
func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Address returns the API "host:port".
func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// DenylistEnabled reports whether deactivations should be pushed to Redis.
func (c *Config) DenylistEnabled() bool {
	return c.Redis.Address != ""
}

// Validate checks the settings the auth core cannot run without.
func (c *Config) Validate() error {
	if len(c.SecretKey) < MinSecretLength {
		return NewConfigurationError("secretKey", fmt.Sprintf("must be at least %d characters", MinSecretLength))
	}
	if len(c.EncryptionKey) < MinSecretLength {
		return NewConfigurationError("encryptionKey", fmt.Sprintf("must be at least %d characters", MinSecretLength))
	}
	if c.KDFIterations < MinKDFIterations {
		return NewConfigurationError("kdfIterations", fmt.Sprintf("must be at least %d", MinKDFIterations))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return NewConfigurationError("tokenTTL", "access and refresh expiries must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Academia")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "")
	v.SetDefault("encryptionKey", "")
	v.SetDefault("kdfIterations", MinKDFIterations)
	v.SetDefault("accessTokenTTL", 15*time.Minute)
	v.SetDefault("refreshTokenTTL", 7*24*time.Hour)
	v.SetDefault("passwordResetTTL", time.Hour)
	v.SetDefault("defaultFromEmail", "Academia <noreply@localhost>")
	v.SetDefault("frontendBaseURL", "http://localhost:8080")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("serverHost", "")
	v.SetDefault("serverPort", "8000")
	v.SetDefault("serverDebugHost", "localhost:4000")
	v.SetDefault("serverReadTimeout", 5*time.Second)
	v.SetDefault("serverWriteTimeout", DefaultServerWriteTimeout)
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("serverBodyLimit", "2M")
	v.SetDefault("serverUploadMaxBytes", int64(1<<20))
	v.SetDefault("serverDisableReqLogs", false)

	v.SetDefault("databaseEngine", "postgres")
	v.SetDefault("databaseHost", "localhost")
	v.SetDefault("databasePort", "5432")
	v.SetDefault("databaseName", "academia")
	v.SetDefault("databaseUser", "academia")
	v.SetDefault("databasePassword", "")
	v.SetDefault("databaseAdminUser", "")
	v.SetDefault("databaseAdminPassword", "")
	v.SetDefault("databaseDisableTLS", true)

	v.SetDefault("redisAddress", "")
	v.SetDefault("redisPassword", "")
	v.SetDefault("redisDB", 0)
}

// NewConfig reads the configuration for the environment named by $ENV (DEV by default).
// Values come from, in order of precedence: $<ENV>_<KEY> variables, config/.env.<env>, defaults.
func NewConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	case "PROD":
		v.SetDefault("debug", false)
	}
	v.SetEnvPrefix(env)

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, "getting working directory")
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "stat %s", dotEnvPath)
	}
	v.AutomaticEnv()

	from, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		return nil, NewConfigurationError("defaultFromEmail", err.Error())
	}

	conf := &Config{
		AppName:          v.GetString("appName"),
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		WorkDir:          wd,
		SecretKey:        v.GetString("secretKey"),
		EncryptionKey:    v.GetString("encryptionKey"),
		KDFIterations:    v.GetInt("kdfIterations"),
		AccessTokenTTL:   v.GetDuration("accessTokenTTL"),
		RefreshTokenTTL:  v.GetDuration("refreshTokenTTL"),
		PasswordResetTTL: v.GetDuration("passwordResetTTL"),
		DefaultFromEmail: *from,
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		Server: ServerConfig{
			Host:            v.GetString("serverHost"),
			Port:            v.GetString("serverPort"),
			DebugHost:       v.GetString("serverDebugHost"),
			ReadTimeout:     v.GetDuration("serverReadTimeout"),
			WriteTimeout:    v.GetDuration("serverWriteTimeout"),
			ShutdownTimeout: v.GetDuration("serverShutdownTimeout"),
			BodyLimit:       v.GetString("serverBodyLimit"),
			UploadMaxBytes:  v.GetInt64("serverUploadMaxBytes"),
			DisableReqLogs:  v.GetBool("serverDisableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("databaseEngine"),
			Host:          v.GetString("databaseHost"),
			Port:          v.GetString("databasePort"),
			Name:          v.GetString("databaseName"),
			User:          v.GetString("databaseUser"),
			Password:      v.GetString("databasePassword"),
			AdminUser:     v.GetString("databaseAdminUser"),
			AdminPassword: v.GetString("databaseAdminPassword"),
			DisableTLS:    v.GetBool("databaseDisableTLS"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redisAddress"),
			Password: v.GetString("redisPassword"),
			DB:       v.GetInt("redisDB"),
		},
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}
