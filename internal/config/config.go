// Package config loads the engine's ambient configuration from the
// environment, mirroring pkg/config/config.go's envconfig.Process pattern,
// plus a YAML app-spec list for static deployments.
package config

import "github.com/kelseyhightower/envconfig"

// ServerConfig is the process-wide configuration for the ingestion engine.
type ServerConfig struct {
	HTTP    HTTP
	Redis   Redis
	Logging Logging
}

// HTTP configures the status/metrics/POST-apps server.
type HTTP struct {
	ListenAddr string `envconfig:"HTTP_LISTEN_ADDR" default:":8080"`
}

// Redis configures the optional external FrameStore backend; Addr is empty
// unless the deployment opts into it.
type Redis struct {
	Addr     string `envconfig:"REDIS_ADDR"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// Logging holds the LOG_LEVEL/LOG_JSON settings. The camstream command does
// not read them: it sets zerolog's level from its --log-level flag and
// always uses the console writer.
type Logging struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	JSON  bool   `envconfig:"LOG_JSON" default:"true"`
}

// Load reads ServerConfig from the environment, applying the struct tags'
// defaults for anything unset.
func Load() (ServerConfig, error) {
	var cfg ServerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}
