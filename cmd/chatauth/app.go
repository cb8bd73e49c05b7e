package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	myPostgresRepo "github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/db/postgres"
	myRedisRepo "github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/db/redis"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/oauth"
	redisPubSub "github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/pubsub/redis"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/app/auth/jwt"
	appsvc "github.com/Miraines/MoonyAndStarry/chat-auth/internal/app/auth/service"
	chatsvc "github.com/Miraines/MoonyAndStarry/chat-auth/internal/app/chat/service"
	authRepo "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/repo"
	chatRepo "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/chat/repo"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/infra/config"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const eventChannelPrefix = "chatauth:"

// app holds every long-lived dependency of one process.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	db    *gorm.DB
	sqlDB *sql.DB
	redis redis.UniversalClient

	auth appsvc.Service
	chat chatsvc.Service
}

func openDB(cfg *config.Config) (*gorm.DB, *sql.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("db handle: %w", err)
	}
	return db, sqlDB, nil
}

func newApp(cfg *config.Config, zapLog *zap.Logger) (*app, error) {
	db, sqlDB, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: zapLog, db: db, sqlDB: sqlDB}

	if cfg.RedisAddress != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}

	validate := validator.New()
	userRepo := myPostgresRepo.NewPostgresUserRepo(db)

	var tokens authRepo.RefreshTokenStore
	switch cfg.TokenStore {
	case config.StoreRedis:
		tokens = myRedisRepo.NewRedisTokenRepo(a.redis)
	default:
		tokens = myPostgresRepo.NewPostgresTokenStore(db)
	}

	jwtUtil, err := jwt.NewJWTUtil(cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init JWT util: %w", err)
	}

	opts := []appsvc.Option{appsvc.WithSecurityHook(appsvc.NewZapSecurityHook(zapLog))}
	if cfg.GoogleSSOEnabled {
		opts = append(opts, appsvc.WithIdentityProvider(
			oauth.NewGoogleProvider(cfg.GoogleUserInfoURL, &http.Client{Timeout: 10 * time.Second}),
		))
	}
	a.auth, err = appsvc.New(userRepo, tokens, jwtUtil, cfg, validate, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	var pub chatRepo.Publisher
	if a.redis != nil {
		pub = redisPubSub.NewPublisher(a.redis, eventChannelPrefix)
	}
	a.chat = chatsvc.New(
		myPostgresRepo.NewPostgresRoomRepo(db),
		myPostgresRepo.NewPostgresMessageRepo(db),
		userRepo,
		pub,
		validate,
		zapLog.Named("chat"),
	)
	return a, nil
}

// ping backs the health endpoint.
func (a *app) ping(ctx context.Context) error {
	if err := a.sqlDB.PingContext(ctx); err != nil {
		return err
	}
	if a.redis != nil {
		return a.redis.Ping(ctx).Err()
	}
	return nil
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.sqlDB != nil {
		_ = a.sqlDB.Close()
	}
}
