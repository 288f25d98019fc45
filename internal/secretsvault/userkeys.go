package secretsvault

import "context"

// KnownProviderKeys lists the LLM provider key names the execution plane
// expects on `init`. Unset keys are silently omitted rather than treated as
// an error, since most users configure only one or two providers.
var KnownProviderKeys = []string{"openai", "anthropic", "google"}

// ProviderKeysForUser resolves each of KnownProviderKeys for userID, scoped
// by key template "{userID}.{provider}", and returns whichever are present.
func (m *Manager) ProviderKeysForUser(ctx context.Context, userID string) (map[string]string, error) {
	keys := make(map[string]string)
	for _, name := range KnownProviderKeys {
		value, err := m.Get(ctx, userID+"."+name)
		if err != nil {
			if err == ErrSecretNotFound {
				continue
			}
			return nil, err
		}
		keys[name] = value
	}
	return keys, nil
}
