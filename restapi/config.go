package restapi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the REST host configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Cassandra CassandraConfig `mapstructure:"cassandra"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Address string `mapstructure:"address" validate:"required,hostname_port"`
	// Mode is the gin mode: debug, release or test.
	Mode string `mapstructure:"mode" validate:"omitempty,oneof=debug release test"`
	// MaxBatchSize caps the actions of one partition in a submitted transaction.
	MaxBatchSize int `mapstructure:"max_batch_size" validate:"gte=1,lte=100"`
}

// AuthConfig configures bearer token verification. Verification is off when Issuer is empty.
type AuthConfig struct {
	Issuer   string `mapstructure:"issuer" validate:"omitempty,url"`
	Audience string `mapstructure:"audience"`
	ClientID string `mapstructure:"client_id"`
	// DevToken, when set, is accepted as is, bypassing the issuer. Meant for QA environments.
	DevToken string `mapstructure:"dev_token"`
}

// CassandraConfig locates the table store cluster.
type CassandraConfig struct {
	Hosts    []string `mapstructure:"hosts" validate:"required,min=1,dive,required"`
	Keyspace string   `mapstructure:"keyspace"`
}

// RedisConfig locates the queue server.
type RedisConfig struct {
	Address  string `mapstructure:"address" validate:"required,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// EnvPrefix prefixes the environment variables overriding configuration keys, e.g. AZREPO_SERVER_ADDRESS.
const EnvPrefix = "AZREPO"

// LoadConfig reads the configuration from configPath (optional, YAML), applies AZREPO_ environment
// overrides and validates the result.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.address", "localhost:8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.max_batch_size", 100)
	v.SetDefault("auth.audience", "api://default")
	v.SetDefault("cassandra.hosts", []string{"localhost"})
	v.SetDefault("cassandra.keyspace", "azrepo")
	v.SetDefault("redis.address", "localhost:6379")

	if configPath != "" {
		v.SetConfigType("yaml")
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("error reading config file %s: %w", configPath, err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only covers keys viper already knows of.
	for _, k := range []string{"auth.issuer", "auth.client_id", "auth.dev_token", "redis.password"} {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("error binding environment variable for %s: %w", k, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}
