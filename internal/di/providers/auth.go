package providers

import (
	"github.com/samber/do/v2"

	"github.com/stonewallbooks/storefront/internal/auth"
	"github.com/stonewallbooks/storefront/internal/config"
	"github.com/stonewallbooks/storefront/internal/logger"
)

// AuthKey wraps the authentication key bytes.
type AuthKey []byte

// ProvideAuthKey loads or generates the authentication key.
func ProvideAuthKey(i do.Injector) (AuthKey, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	key, err := auth.LoadOrGenerateKey(cfg.Storage.DataPath)
	if err != nil {
		return nil, err
	}

	cfg.Auth.AccessTokenKey = key

	log.Info("Authentication key loaded",
		"session_duration", cfg.Auth.SessionDuration,
		"anonymous_session_duration", cfg.Auth.AnonymousSessionDuration,
	)

	return AuthKey(key), nil
}

// ProvideTokenService provides the PASETO token service.
func ProvideTokenService(i do.Injector) (*auth.TokenService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	authKey := do.MustInvoke[AuthKey](i)

	return auth.NewTokenService(authKey, cfg.Auth.SessionDuration, cfg.Auth.AnonymousSessionDuration)
}

// ProvideAuthority provides account sign-in and token verification. Accounts live in the
// same backend as the store document.
func ProvideAuthority(i do.Injector) (*auth.Authority, error) {
	storeHandle := do.MustInvoke[*DocumentStoreHandle](i)
	tokens := do.MustInvoke[*auth.TokenService](i)
	log := do.MustInvoke[*logger.Logger](i)

	return auth.NewAuthority(auth.NewAccountStore(storeHandle.Backend), tokens, auth.DefaultHasher, log.Component("auth")), nil
}
