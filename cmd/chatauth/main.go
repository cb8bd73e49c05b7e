package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	myGrpc "github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/grpc"
	myHttp "github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/http"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/ratelimit"
	appsvc "github.com/Miraines/MoonyAndStarry/chat-auth/internal/app/auth/service"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/infra/config"
	lg "github.com/Miraines/MoonyAndStarry/chat-auth/internal/infra/log"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/infra/migrate"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/infra/server"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	zapLog := lg.Must(os.Getenv("LOG_LEVEL"))
	defer zapLog.Sync()

	if err := rootCmd(zapLog).Execute(); err != nil {
		zapLog.Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}

func rootCmd(zapLog *zap.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "chatauth",
		Short:         "Authentication, sessions and access control for the chat",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		serveCmd(zapLog),
		migrateCmd(zapLog),
		purgeCmd(zapLog),
		revokeCmd(zapLog),
	)
	return root
}

func serveCmd(zapLog *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a, err := newApp(cfg, zapLog)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := migrate.Up(a.sqlDB); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}

			if !cfg.IsDev() {
				gin.SetMode(gin.ReleaseMode)
			}
			httpLimiter := ratelimit.NewPerKey(cfg.RateLimitRPS, cfg.RateLimitBurst, 10_000, time.Hour)
			grpcLimiter := ratelimit.NewPerKey(cfg.RateLimitRPS, cfg.RateLimitBurst, 10_000, time.Hour)

			router := myHttp.NewRouter(myHttp.Deps{
				Auth:    a.auth,
				Chat:    a.chat,
				Config:  cfg,
				Logger:  zapLog,
				Limiter: httpLimiter,
				Ping:    a.ping,
			})
			srv := server.NewHTTPServer(cfg.HTTPAddress, router)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			g, ctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				return server.StartHTTPServer(ctx, srv, zapLog)
			})
			g.Go(func() error {
				return server.StartGRPCServer(ctx, cfg.GRPCAddress, myGrpc.NewHandler(a.auth, zapLog), grpcLimiter, zapLog)
			})
			g.Go(func() error {
				purgeLoop(ctx, a.auth, cfg.PurgeInterval, zapLog)
				return nil
			})
			g.Go(func() error {
				httpLimiter.Sweep(ctx)
				return nil
			})
			g.Go(func() error {
				grpcLimiter.Sweep(ctx)
				return nil
			})

			<-ctx.Done()
			zapLog.Info("shutdown signal received")
			return g.Wait()
		},
	}
}

func migrateCmd(zapLog *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			_, sqlDB, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			if err := migrate.Up(sqlDB); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			version, dirty, err := migrate.Version(sqlDB)
			if err != nil {
				return err
			}
			zapLog.Info("schema up to date", zap.Uint("version", version), zap.Bool("dirty", dirty))
			return nil
		},
	}
}

func purgeCmd(zapLog *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-tokens",
		Short: "Delete expired refresh tokens once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a, err := newApp(cfg, zapLog)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.auth.PurgeExpired(cmd.Context())
			if err != nil {
				return err
			}
			zapLog.Info("expired refresh tokens purged", zap.Int64("count", n))
			return nil
		},
	}
}

func revokeCmd(zapLog *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke-tokens <user-id>",
		Short: "Revoke every refresh token of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("bad user id: %w", err)
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a, err := newApp(cfg, zapLog)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.auth.RevokeAll(cmd.Context(), uid)
			if err != nil {
				return err
			}
			zapLog.Info("refresh tokens revoked", zap.String("user_id", uid.String()), zap.Int64("count", n))
			return nil
		},
	}
}

// purgeLoop runs PurgeExpired every interval until ctx is done.
func purgeLoop(ctx context.Context, svc appsvc.Service, every time.Duration, zapLog *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.PurgeExpired(ctx)
			if err != nil {
				zapLog.Warn("purge expired tokens", zap.Error(err))
				continue
			}
			zapLog.Debug("expired refresh tokens purged", zap.Int64("count", n))
		}
	}
}
