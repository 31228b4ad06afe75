package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Sternrassler/lizard-client/pkg/checkpoint"
	"github.com/Sternrassler/lizard-client/pkg/client"
	"github.com/Sternrassler/lizard-client/pkg/connector"
	"github.com/Sternrassler/lizard-client/pkg/endpoint"
	"github.com/Sternrassler/lizard-client/pkg/logging"
	"github.com/Sternrassler/lizard-client/pkg/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

const defaultBaseURL = client.DefaultBaseURL

var envKeyReplacer = strings.NewReplacer("-", "_")

func setupLogging(v *viper.Viper, w io.Writer) error {
	level, err := logging.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return err
	}
	if v.GetBool("verbose") {
		level = logging.LevelDebug
	}
	logging.Setup(logging.Config{
		Level:  level,
		Pretty: true,
		Output: w,
	})
	return nil
}

// app holds everything a command needs to talk to Lizard.
type app struct {
	client    *client.Client
	connector *connector.Connector
	registry  *endpoint.Registry
	redis     *redis.Client
	metrics   *metrics.Server
}

func newApp(ctx context.Context, v *viper.Viper) (*app, error) {
	a := &app{}

	if err := promptPassword(v, os.Stderr); err != nil {
		return nil, err
	}

	registry, err := loadRegistry(v)
	if err != nil {
		return nil, err
	}
	a.registry = registry

	if addr := v.GetString("redis"); addr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: addr})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
		}
		log.Debug().Str("addr", addr).Msg("Connected to Redis")
	}

	cfg := client.DefaultConfig("lizard-cli/" + version)
	if base := v.GetString("base-url"); base != "" {
		cfg.BaseURL = base
	}
	if v.IsSet("timeout") {
		cfg.Timeout = v.GetDuration("timeout")
	}
	if v.IsSet("max-attempts") {
		cfg.Retry.MaxAttempts = v.GetInt("max-attempts")
	}
	if v.IsSet("requests-per-second") {
		cfg.RequestsPerSecond = v.GetFloat64("requests-per-second")
	}
	cfg.Redis = a.redis

	c, err := client.New(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.client = c

	ccfg := connector.DefaultConfig()
	ccfg.Credentials = credentials(v)
	ccfg.Principal = v.GetString("username")
	ccfg.Registry = registry
	if a.redis != nil {
		ttl := checkpoint.DefaultTTL
		if v.IsSet("checkpoint-ttl") {
			ttl = v.GetDuration("checkpoint-ttl")
		}
		ccfg.Checkpoints = checkpoint.NewRedisStore(a.redis, ttl)
	}
	if v.IsSet("max-pages") {
		ccfg.Pagination.MaxPages = v.GetInt("max-pages")
	}

	conn, err := connector.New(c, ccfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.connector = conn

	if addr := v.GetString("metrics-addr"); addr != "" {
		srv, err := metrics.Serve(ctx, addr)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.metrics = srv
	}

	return a, nil
}

func (a *app) Close() {
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metrics.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
}

// credentials picks the most specific configured authentication.
func credentials(v *viper.Viper) client.Credentials {
	switch {
	case v.GetString("api-key") != "":
		return client.APIKey(v.GetString("api-key"))
	case v.GetString("token") != "":
		return client.BearerToken{Token: v.GetString("token")}
	case v.GetString("username") != "" && v.GetString("password") != "":
		return client.HeaderAuth{
			Username: v.GetString("username"),
			Password: v.GetString("password"),
		}
	}
	return client.NoAuth{}
}

// promptPassword asks for the password when only a user name is configured
// and stdin is a terminal.
func promptPassword(v *viper.Viper, w io.Writer) error {
	if v.GetString("username") == "" || v.GetString("password") != "" {
		return nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}

	fmt.Fprint(w, "Password: ")
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	v.Set("password", string(secret))
	return nil
}

func loadRegistry(v *viper.Viper) (*endpoint.Registry, error) {
	registry, err := endpoint.NewRegistry(endpoint.Builtin()...)
	if err != nil {
		return nil, err
	}
	if path := v.GetString("endpoints-file"); path != "" {
		if err := registry.LoadInto(path); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
