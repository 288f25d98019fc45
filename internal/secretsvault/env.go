package secretsvault

import (
	"context"
	"os"
	"strings"
)

// EnvProvider reads secrets from environment variables. It is the default
// backend and requires no external connectivity.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an environment-variable provider using prefix to
// namespace secret lookups.
func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = "GATEWAY_SECRET_"
	}
	return &EnvProvider{prefix: prefix}
}

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) Get(_ context.Context, key string) (string, error) {
	envKey := p.prefix + normalizeEnvKey(key)
	if value := os.Getenv(envKey); value != "" {
		return value, nil
	}
	return "", ErrSecretNotFound
}

func (p *EnvProvider) List(_ context.Context) ([]string, error) {
	var keys []string
	for _, env := range os.Environ() {
		name, _, ok := strings.Cut(env, "=")
		if ok && strings.HasPrefix(name, p.prefix) {
			keys = append(keys, strings.TrimPrefix(name, p.prefix))
		}
	}
	return keys, nil
}

func (p *EnvProvider) Close() error { return nil }

func (p *EnvProvider) Healthy(_ context.Context) bool { return true }

var _ Provider = (*EnvProvider)(nil)
