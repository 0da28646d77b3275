// Package config loads the gateway's structured JSON configuration
// document, layering environment variable overrides and defaults on top
// of it with viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/aras-services/aras-gateway/internal/domain"
)

// ServerConfig controls the gateway's two listeners. The TLS listener on
// HTTPSAddr starts only when both CertFile and KeyFile are non-empty;
// otherwise the gateway serves plaintext HTTP only, matching a local/dev
// profile.
type ServerConfig struct {
	HTTPAddr  string `mapstructure:"HttpAddr"`
	HTTPSAddr string `mapstructure:"HttpsAddr"`
	CertFile  string `mapstructure:"CertFile"`
	KeyFile   string `mapstructure:"KeyFile"`
}

// LoggingConfig holds the document's Logging section. cmd/server does not
// read LogLevel: its zap logger is built with zap's production defaults
// before the configuration is loaded.
type LoggingConfig struct {
	LogLevel string `mapstructure:"LogLevel"`
}

// RabbitMQConfig is the broker connection used by internal/busclient.
type RabbitMQConfig struct {
	Hostname string        `mapstructure:"Hostname"`
	Username string        `mapstructure:"Username"`
	Password string        `mapstructure:"Password"`
	Timeout  time.Duration `mapstructure:"Timeout"`
}

// KeycloakConfig is the OpenID Connect provider consulted by
// internal/oidc for token verification.
type KeycloakConfig struct {
	Authority            string `mapstructure:"Authority"`
	Audience             string `mapstructure:"Audience"`
	RequireHttpsMetadata bool   `mapstructure:"RequireHttpsMetadata"`
}

// AppSettings groups the gateway-specific settings that do not belong to
// the server, logging, or broker sections.
type AppSettings struct {
	Keycloak       KeycloakConfig `mapstructure:"Keycloak"`
	AllowedOrigins []string       `mapstructure:"AllowedOrigins"`
}

// Config is the fully resolved configuration document: the JSON file on
// disk, overridden by GATEWAY_-prefixed environment variables, overlaid
// on the defaults in setDefaults.
type Config struct {
	Server      ServerConfig         `mapstructure:"Server"`
	Logging     LoggingConfig        `mapstructure:"Logging"`
	RabbitMQ    RabbitMQConfig       `mapstructure:"RabbitMQ"`
	AppSettings AppSettings          `mapstructure:"AppSettings"`
	Routing     domain.RoutingConfig `mapstructure:"GatewayRouting"`
}

// Load reads the configuration document at path (if non-empty; otherwise
// it searches the working directory for gatewaysettings.json), applies
// GATEWAY_ environment variable overrides, and unmarshals the result into
// a Config. Missing sections fall back to the defaults set in
// setDefaults; a missing config file is not itself an error as long as
// environment variables supply what's needed.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gatewaysettings")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// An explicit path that does not exist surfaces as a plain
		// not-exist error rather than viper.ConfigFileNotFoundError.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: reading configuration: %w", err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		stringToScopeHookFunc,
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("config: decoding configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Server.HttpAddr", ":8080")
	v.SetDefault("Server.HttpsAddr", ":8081")
	v.SetDefault("Logging.LogLevel", "info")
	v.SetDefault("RabbitMQ.Hostname", "localhost")
	v.SetDefault("RabbitMQ.Timeout", "10s")
	v.SetDefault("AppSettings.Keycloak.RequireHttpsMetadata", true)
}

var scopeType = reflect.TypeOf(domain.Private)

// stringToScopeHookFunc converts the configuration document's quoted
// "Public"/"Private" strings into domain.Scope during mapstructure
// decoding. viper's default decoder never invokes encoding/json's
// Unmarshaler on Scope, since it decodes from the generic
// map[string]interface{} tree produced by ReadInConfig, not from raw
// JSON bytes.
func stringToScopeHookFunc(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != scopeType {
		return data, nil
	}
	return domain.ParseScope(data.(string))
}
