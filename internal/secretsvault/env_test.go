package secretsvault

import (
	"context"
	"testing"
)

func TestEnvProviderGetUsesPrefixAndNormalizesKey(t *testing.T) {
	t.Setenv("GATEWAY_SECRET_USER_1_OPENAI", "sk-test-123")
	p := NewEnvProvider("GATEWAY_SECRET_")

	value, err := p.Get(context.Background(), "user-1.openai")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if value != "sk-test-123" {
		t.Errorf("Get() = %q, want sk-test-123", value)
	}
}

func TestEnvProviderGetMissingReturnsNotFound(t *testing.T) {
	p := NewEnvProvider("GATEWAY_SECRET_")
	if _, err := p.Get(context.Background(), "user-2.openai"); err != ErrSecretNotFound {
		t.Errorf("Get() error = %v, want ErrSecretNotFound", err)
	}
}

func TestProviderKeysForUserSkipsMissingKeys(t *testing.T) {
	t.Setenv("GATEWAY_SECRET_USER_3_OPENAI", "sk-openai")
	manager, err := NewManager(&Config{Provider: ProviderTypeEnv, EnvPrefix: "GATEWAY_SECRET_"})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	keys, err := manager.ProviderKeysForUser(context.Background(), "user-3")
	if err != nil {
		t.Fatalf("ProviderKeysForUser() error = %v", err)
	}
	if keys["openai"] != "sk-openai" {
		t.Errorf("keys[openai] = %q, want sk-openai", keys["openai"])
	}
	if _, ok := keys["anthropic"]; ok {
		t.Errorf("keys[anthropic] should be absent, got %q", keys["anthropic"])
	}
}
