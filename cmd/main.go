package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/mkazakov/sessiond/internal/api"
	"github.com/mkazakov/sessiond/internal/controller"
	"github.com/mkazakov/sessiond/internal/migrations"
	"github.com/mkazakov/sessiond/internal/service"
	"github.com/mkazakov/sessiond/internal/storage/postgres"
	redisstorage "github.com/mkazakov/sessiond/internal/storage/redis"
	"github.com/mkazakov/sessiond/internal/util"

	_ "github.com/lib/pq"
)

func main() {
	ctx := context.Background()
	logger := util.NewZapLogger()

	// Misconfiguration is fatal here, before any request is served.
	tokenConfig, err := util.NewTokenConfig()
	if err != nil {
		logger.Fatal(zap.Error(err))
	}
	sessionConfig := util.NewSessionConfig()
	passwordConfig := util.NewPasswordConfig()

	db, dbCleanup, err := util.NewDBConnection(logger)
	if err != nil {
		logger.Fatal(zap.Error(err))
	}
	if err := migrations.RunMigrations(db, logger, "./internal/migrations"); err != nil {
		logger.Fatal(zap.Error(err))
	}

	redisConfig, err := util.NewRedisConfig()
	if err != nil {
		logger.Fatal(zap.Error(err))
	}
	redisClient, redisCleanup, err := util.NewRedisClient(ctx, logger, redisConfig)
	if err != nil {
		logger.Fatal(zap.Error(err))
	}

	cleanupFuncs := []func(){dbCleanup, redisCleanup}

	store := postgres.NewStorage(db, sessionConfig.MaxSessionsPerUser)
	tokenStorage := redisstorage.NewTokenStorage(redisClient)

	tokenService := service.NewTokenService(tokenConfig)
	hasher := service.NewPasswordHasher(passwordConfig.BcryptCost)
	verifier := service.NewCredentialVerifier(store, hasher)
	notifier := service.NewResetNotifier(logger, util.GetResetNotifyURL())
	authService := service.NewAuthService(
		tokenService,
		verifier,
		hasher,
		store,
		tokenStorage,
		notifier,
		passwordConfig.ResetTokenTTL,
		nil,
		logger,
	)
	sweeper := service.NewSweeper(store, sessionConfig.SweepInterval, nil, logger)

	ctrl := controller.NewController(logger, authService)

	apiServer := api.NewAPI(ctrl, authService, sweeper, util.NewServerConfig(), logger, cleanupFuncs)
	apiServer.Run(ctx)
}
