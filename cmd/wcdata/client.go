package main

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/kalambet/wcdata/internal/config"
	"github.com/kalambet/wcdata/internal/querykey"
	"github.com/kalambet/wcdata/internal/resolver"
	"github.com/kalambet/wcdata/internal/wcapi"
)

// newRegistry builds the registry the data commands resolve through.
var newRegistry = func() (*resolver.Registry, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return registryFor(cfg)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	setupLogging(cfg.Log.Level)
	return cfg, nil
}

func registryFor(cfg config.Config) (*resolver.Registry, error) {
	client := wcapi.New(cfg.API.BaseURL, wcapi.Options{
		ConsumerKey:    cfg.API.ConsumerKey,
		ConsumerSecret: cfg.API.ConsumerSecret,
		Token:          cfg.Server.Token,
		Timeout:        cfg.API.Timeout,
		MaxRetries:     cfg.API.MaxRetries,
	})
	reg, err := resolver.NewRegistry(client)
	if err != nil {
		return nil, err
	}
	if err := reg.Restrict(splitList(cfg.API.Resources)...); err != nil {
		return nil, fmt.Errorf("api.resources: %w", err)
	}
	return reg, nil
}

func splitList(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func setupLogging(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// parseAssignments turns "key=value" arguments into a query. Brackets work
// as in a query string: "include[]=1 include[]=2", "meta[color]=red".
func parseAssignments(args []string) (querykey.Query, error) {
	values := url.Values{}
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("argument %q is not key=value", arg)
		}
		values.Add(k, v)
	}
	return querykey.FromValues(values), nil
}
