package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KSEB-AI-3/gardendoctor-backend-sub000/internal/tokenkit"
	"github.com/KSEB-AI-3/gardendoctor-backend-sub000/internal/users"
	"github.com/KSEB-AI-3/gardendoctor-backend-sub000/internal/web"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "gardendoctor",
		Short:   "Garden care backend with JWT access tokens, rotating refresh tokens, and replay detection",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.PersistentFlags().String("database_url", "", "Database URL for refresh tokens and users (postgres:// or sqlite://)")
	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("jwt_signing_key", "", "HS256 signing secret for access and refresh JWTs")
	rootCmd.Flags().Duration("access_ttl", 15*time.Minute, "Access token TTL")
	rootCmd.Flags().Duration("refresh_ttl", 14*24*time.Hour, "Refresh token TTL")
	rootCmd.Flags().String("redis_addr", "", "Redis address for the token blacklist; leave empty for in-memory blacklist")
	rootCmd.Flags().String("redis_password", "", "Redis password")
	rootCmd.Flags().Int("redis_db", 0, "Redis database index")
	rootCmd.Flags().Duration("sweep_interval", time.Hour, "Interval between expired refresh token sweeps")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled")

	_ = viper.BindPFlag("database_url", rootCmd.PersistentFlags().Lookup("database_url"))
	_ = viper.BindPFlag("listen_addr", rootCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("jwt_signing_key", rootCmd.Flags().Lookup("jwt_signing_key"))
	_ = viper.BindPFlag("access_ttl", rootCmd.Flags().Lookup("access_ttl"))
	_ = viper.BindPFlag("refresh_ttl", rootCmd.Flags().Lookup("refresh_ttl"))
	_ = viper.BindPFlag("redis_addr", rootCmd.Flags().Lookup("redis_addr"))
	_ = viper.BindPFlag("redis_password", rootCmd.Flags().Lookup("redis_password"))
	_ = viper.BindPFlag("redis_db", rootCmd.Flags().Lookup("redis_db"))
	_ = viper.BindPFlag("sweep_interval", rootCmd.Flags().Lookup("sweep_interval"))
	_ = viper.BindPFlag("enable_cors", rootCmd.Flags().Lookup("enable_cors"))
	_ = viper.BindPFlag("cors_allowed_origins", rootCmd.Flags().Lookup("cors_allowed_origins"))

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	rootCmd.AddCommand(newCreateUserCommand())

	return rootCmd
}

const (
	jwtIssuer       = "gardendoctor-auth"
	blacklistPrefix = "gardendoctor:blacklist:"

	configCodeMissingJWTSigningKey    = "config.missing_jwt_signing_key"
	configCodeMissingDatabaseURL      = "config.missing_database_url"
	configCodeInvalidAccessTTL        = "config.invalid_access_ttl"
	configCodeInvalidRefreshTTL       = "config.invalid_refresh_ttl"
	configCodeInvalidSweepInterval    = "config.invalid_sweep_interval"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig reads and validates token lifecycle settings from viper.
func LoadServerConfig() (tokenkit.ServerConfig, error) {
	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return tokenkit.ServerConfig{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	if viper.GetString("database_url") == "" {
		return tokenkit.ServerConfig{}, configError(configCodeMissingDatabaseURL, "database_url must be provided")
	}

	accessTTL := viper.GetDuration("access_ttl")
	if accessTTL <= 0 {
		return tokenkit.ServerConfig{}, configError(configCodeInvalidAccessTTL, "access_ttl must be greater than zero")
	}

	refreshTTL := viper.GetDuration("refresh_ttl")
	if refreshTTL <= accessTTL {
		return tokenkit.ServerConfig{}, configError(configCodeInvalidRefreshTTL, "refresh_ttl must exceed access_ttl")
	}

	sweepInterval := viper.GetDuration("sweep_interval")
	if sweepInterval <= 0 {
		return tokenkit.ServerConfig{}, configError(configCodeInvalidSweepInterval, "sweep_interval must be greater than zero")
	}

	return tokenkit.ServerConfig{
		SigningKey:      []byte(jwtSigningKey),
		Issuer:          jwtIssuer,
		AccessTTL:       accessTTL,
		RefreshTTL:      refreshTTL,
		BlacklistPrefix: blacklistPrefix,
		SweepInterval:   sweepInterval,
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(tokenkit.ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	listenAddr := viper.GetString("listen_addr")
	databaseURL := viper.GetString("database_url")
	redisAddr := viper.GetString("redis_addr")
	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if enableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, corsAllowedOrigins)
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	clock := tokenkit.NewSystemClock()

	codec, codecErr := tokenkit.NewTokenCodec(serverConfig.SigningKey, serverConfig.Issuer, clock)
	if codecErr != nil {
		return codecErr
	}

	gormDB, driverLabel, openErr := tokenkit.OpenDatabase(databaseURL)
	if openErr != nil {
		return openErr
	}
	refreshStore, storeErr := tokenkit.NewDatabaseRefreshTokenStore(commandContext, gormDB, driverLabel, clock)
	if storeErr != nil {
		return storeErr
	}
	logger.Info("using persistent refresh token store", zap.String("driver", refreshStore.Driver()))

	userStore, userStoreErr := users.NewStore(commandContext, gormDB)
	if userStoreErr != nil {
		return userStoreErr
	}

	var blacklist tokenkit.BlacklistStore
	if redisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: viper.GetString("redis_password"),
			DB:       viper.GetInt("redis_db"),
		})
		pingCtx, pingCancel := context.WithTimeout(commandContext, 5*time.Second)
		defer pingCancel()
		if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
			return fmt.Errorf("blacklist.redis_unreachable: %w", pingErr)
		}
		blacklist = tokenkit.NewRedisBlacklist(redisClient, serverConfig.BlacklistPrefix)
		logger.Info("using redis blacklist", zap.String("addr", redisAddr))
	} else {
		blacklist = tokenkit.NewMemoryBlacklist(clock)
		logger.Warn("using in-memory blacklist; revocations do not survive restarts and are not shared between instances")
	}

	metricsRecorder := tokenkit.NewCounterMetrics()
	verifier := users.NewBcryptVerifier(userStore)

	tokenService, serviceErr := tokenkit.NewTokenService(codec, blacklist, refreshStore, verifier,
		serverConfig.AccessTTL, serverConfig.RefreshTTL, logger, metricsRecorder)
	if serviceErr != nil {
		return serviceErr
	}

	tokenkit.MountAuthRoutes(router, tokenService, codec, blacklist, metricsRecorder)

	protected := router.Group("/api")
	protected.Use(tokenkit.RequireAuth(codec, blacklist, metricsRecorder))
	protected.GET("/profile", web.HandleProfile(logger, userStore))

	sweeper, sweeperErr := tokenkit.NewSweeper(refreshStore, serverConfig.SweepInterval, logger, metricsRecorder)
	if sweeperErr != nil {
		return sweeperErr
	}
	if startErr := sweeper.Start(); startErr != nil {
		return startErr
	}
	defer func() {
		if stopErr := sweeper.Stop(); stopErr != nil {
			logger.Error("sweeper shutdown error", zap.Error(stopErr))
		}
	}()

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
