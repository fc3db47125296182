package controllers

import (
	"time"

	"github.com/smartfix-dev/smartfix-api/config"
	"github.com/smartfix-dev/smartfix-api/services"
)

func appConfig() *config.Config {
	if cfg := config.GetConfig(); cfg != nil {
		return cfg
	}
	return &config.Config{StatusPolicy: "strict", StoreTimeout: services.DefaultStoreTimeout, RequireVerified: true}
}

func storeTimeout() time.Duration {
	return appConfig().StoreTimeout
}

func requestService() *services.RequestService {
	cfg := appConfig()
	policy, err := services.ParseStatusPolicy(cfg.StatusPolicy)
	if err != nil {
		policy = services.PolicyStrict
	}
	return services.NewRequestService(services.NewRequestLedger(config.GetDB(), services.LedgerOptions{
		Policy:   policy,
		Timeout:  cfg.StoreTimeout,
		Notifier: services.GetNotifier(),
	}))
}

func tokenService() *services.TokenService {
	cfg := appConfig()
	return services.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTTTL)
}

func identityStore() *services.IdentityStore {
	cfg := appConfig()
	return services.NewIdentityStore(config.GetDB(), services.IdentityOptions{
		Tokens:          tokenService(),
		Timeout:         cfg.StoreTimeout,
		RequireVerified: cfg.RequireVerified,
		Notifier:        services.GetNotifier(),
	})
}

func commentLog() *services.CommentLog {
	return services.NewCommentLog(config.GetDB(), storeTimeout())
}

func serviceCatalog() *services.ServiceCatalog {
	return services.NewServiceCatalog(config.GetDB(), storeTimeout())
}
