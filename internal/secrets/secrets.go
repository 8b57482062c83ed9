// Package secrets stores credentials in the platform secret store.
// On macOS this is the system Keychain; elsewhere every operation returns
// ErrNotSupported and callers fall back to a token file.
package secrets

import "errors"

// ServiceName is the keychain service chatline credentials live under.
const ServiceName = "chatline"

// AccountAccessToken is the account holding the API access token.
const AccountAccessToken = "access-token"

var (
	// ErrNotFound is returned when a credential is not in the store.
	ErrNotFound = errors.New("credential not found")

	// ErrNotSupported is returned on platforms without a secret store.
	ErrNotSupported = errors.New("secret store not supported on this platform")
)

// SecretStore is a service/account keyed credential store.
// Implementations must be safe for concurrent use.
type SecretStore interface {
	// Get returns ErrNotFound if the credential does not exist.
	Get(service, account string) (string, error)
	// Set creates or replaces a credential.
	Set(service, account, secret string) error
	// Delete returns ErrNotFound if the credential does not exist.
	Delete(service, account string) error
	IsSupported() bool
}

// store is set by the platform init.
var store SecretStore

// Default returns the platform store. It never returns nil.
func Default() SecretStore {
	if store == nil {
		store = &NoopStore{}
	}
	return store
}

// IsSupported reports whether the platform has a secret store.
func IsSupported() bool {
	return Default().IsSupported()
}

// AccessToken reads the stored access token from s.
func AccessToken(s SecretStore) (string, error) {
	return s.Get(ServiceName, AccountAccessToken)
}

// SetAccessToken stores the access token in s.
func SetAccessToken(s SecretStore, token string) error {
	return s.Set(ServiceName, AccountAccessToken, token)
}

// DeleteAccessToken removes the access token from s.
func DeleteAccessToken(s SecretStore) error {
	return s.Delete(ServiceName, AccountAccessToken)
}
