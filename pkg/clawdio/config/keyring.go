// keyring.go stores tokens in the OS keyring (Linux: Secret Service, macOS:
// Keychain, Windows: Credential Manager). Resolution order for a secret is
// keyring, then environment variable, then config value.
package config

import "github.com/zalando/go-keyring"

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "clawdio"

	keyringTelegramToken = "telegram_token"
	keyringDiscordToken  = "discord_token"
	keyringAnthropicKey  = "anthropic_api_key"
)

// KeyringSecrets lists the secret names accepted by StoreKeyring.
func KeyringSecrets() []string {
	return []string{keyringTelegramToken, keyringDiscordToken, keyringAnthropicKey}
}

// StoreKeyring saves a secret in the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret, or "" when absent or the keyring is
// unavailable.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// KeyringAvailable probes the keyring with a write and delete cycle.
func KeyringAvailable() bool {
	const testKey = "__clawdio_test__"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, testKey)
	return true
}
