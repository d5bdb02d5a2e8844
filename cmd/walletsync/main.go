package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"futarchy_wallet/internal/app/service"
	"futarchy_wallet/internal/infrastructure/configloader"
	evmclient "futarchy_wallet/internal/infrastructure/network/client"
	networkdefinition "futarchy_wallet/internal/infrastructure/network/definition"
	"futarchy_wallet/internal/infrastructure/positions"
	"futarchy_wallet/internal/infrastructure/restapi"
	"futarchy_wallet/internal/infrastructure/sessionstore"
	"futarchy_wallet/internal/pkg/logger"
	"futarchy_wallet/internal/pkg/metrics"
	"futarchy_wallet/internal/pkg/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfgPath := utils.GetEnv("CONFIG_PATH", "config/config.yml")
	cfg, err := configloader.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	zapLogger, err := newZapLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: failed to initialize zap logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync() //nolint:errcheck

	// slog поверх zap, чтобы port.Logger и zap писали в один поток
	logger.UseHandler(zapslog.NewHandler(zapLogger.Core()))
	if level, ok := logger.ParseLevel(cfg.Logging.Level); ok && level == slog.LevelDebug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("Wallet sync service starting", "config", cfgPath)
	metrics.MustRegisterMetrics()

	registry, err := buildRegistry(cfg)
	if err != nil {
		logger.Fatal("Failed to build network registry", "error", err)
	}
	holder := networkdefinition.NewHolder(registry, logger.Named("networks"))
	if cfg.Networks.DeploymentFile != "" {
		if err := holder.ReloadDeployment(cfg.Networks.DeploymentFile); err != nil {
			logger.Warn("Local deployment file not loaded", "path", cfg.Networks.DeploymentFile, "error", err)
		}
	}

	store, err := sessionstore.NewFileStore(cfg.Session.FilePath, logger.Named("session"))
	if err != nil {
		logger.Fatal("Failed to open session store", "path", cfg.Session.FilePath, "error", err)
	}

	var probe *evmclient.RPCProbe
	if cfg.RPC.ProbeEndpoints {
		probe = evmclient.NewRPCProbe(time.Duration(cfg.RPC.ProbeTimeoutMillis)*time.Millisecond, zapLogger)
	}
	provider := evmclient.NewEVMProvider(holder, evmclient.ProviderOptions{
		Accounts:          cfg.Wallet.Accounts,
		InitialChainID:    cfg.Wallet.InitialChainID,
		CallTimeout:       cfg.CallTimeout(),
		ConnectionTimeout: time.Duration(cfg.RPC.ConnectionTimeoutSeconds) * time.Second,
		RateLimit:         cfg.RPC.RateLimit,
		BurstLimit:        cfg.RPC.BurstLimit,
		Probe:             probe,
		Permissions:       store,
	}, logger.Named("evm_provider"))
	defer provider.Close()

	wallet := service.NewWalletManager(provider, holder, store, logger.Named("wallet"), service.WalletManagerOptions{
		DefaultNetwork: cfg.Wallet.DefaultNetwork,
		LocalChainID:   networkdefinition.LocalChainID,
		ReloadLocalChain: func() error {
			if cfg.Networks.DeploymentFile == "" {
				return nil
			}
			if err := holder.ReloadDeployment(cfg.Networks.DeploymentFile); err != nil {
				return err
			}
			// адреса и RPC могли поменяться после редеплоя
			provider.ResetClient(networkdefinition.LocalChainID)
			return nil
		},
	})
	defer wallet.Close()

	token := service.NewTokenService(provider, holder, wallet, store, logger.Named("token"), service.TokenServiceOptions{
		AirdropAmount:      cfg.AirdropAmount(),
		GasLimit:           cfg.Claim.GasLimit,
		GasPriceMultiplier: cfg.Claim.GasPriceMultiplier,
		ReceiptInterval:    time.Duration(cfg.Polling.ReceiptIntervalMillis) * time.Millisecond,
		ReceiptTimeout:     time.Duration(cfg.Polling.ReceiptTimeoutSeconds) * time.Second,
		Locale:             cfg.Locale,
	})
	defer token.Close()

	portfolio := service.NewPortfolioService(provider, holder, wallet, positions.EmptyReader{}, logger.Named("portfolio"))
	defer portfolio.Close()

	watcher := service.NewBlockWatcher(provider, time.Duration(cfg.Polling.BlockIntervalMillis)*time.Millisecond, logger.Named("block_watcher"))
	syncer := service.NewSyncService(wallet, token, portfolio, watcher, logger.Named("sync"), service.SyncOptions{
		BlockInterval:           time.Duration(cfg.Polling.BlockIntervalMillis) * time.Millisecond,
		BackstopInterval:        time.Duration(cfg.Polling.BackstopIntervalSeconds) * time.Second,
		ConnectionCheckInterval: time.Duration(cfg.Polling.ConnectionCheckSeconds) * time.Second,
	})

	initCtx, initCancel := context.WithTimeout(context.Background(), cfg.CallTimeout())
	wallet.Init(initCtx)
	initCancel()
	syncer.Start()
	defer syncer.Stop()

	router := restapi.SetupRouter(restapi.Services{
		Wallet:    wallet,
		Token:     token,
		Portfolio: portfolio,
		Networks:  holder,
	}, cfg.Swagger, logger.Named("http"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		logger.Info("HTTP server starting", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start HTTP server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	logger.Info("Wallet sync service stopped")
}

// newZapLogger builds the production zap logger at the configured level, optionally also writing to a file.
func newZapLogger(cfg configloader.LoggingConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.File != "" {
		zapCfg.OutputPaths = append(zapCfg.OutputPaths, cfg.File)
	}
	return zapCfg.Build()
}

// buildRegistry applies the config overrides on top of the predefined networks.
func buildRegistry(cfg *configloader.Config) (*networkdefinition.Registry, error) {
	registry := networkdefinition.DefaultRegistry()
	for _, o := range cfg.Networks.Overrides {
		next, err := registry.WithOverride(o.ChainID, o)
		if err != nil {
			return nil, fmt.Errorf("network override for chain %d: %w", o.ChainID, err)
		}
		registry = next
	}
	return registry, nil
}
