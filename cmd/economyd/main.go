package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/amberforum/economy/internal/bots"
	"github.com/amberforum/economy/internal/httpapi"
	"github.com/amberforum/economy/internal/jobs"
	"github.com/amberforum/economy/internal/ranks"
	"github.com/amberforum/economy/internal/store/gormstore"
	"github.com/amberforum/economy/internal/zaplog"
	"github.com/amberforum/economy/pkg/economy"
)

const (
	flagDatabaseURL     = "database-url"
	flagListenAddr      = "listen-addr"
	flagAdminSigningKey = "admin-signing-key"
	flagAdminIssuer     = "admin-issuer"
	flagAllowedOrigins  = "allowed-origins"
	flagTickInterval    = "tick-interval"
	flagWeeklyXpCap     = "weekly-xp-cap"
	flagDailySpendLimit = "treasury-daily-limit"
	flagWalletCap       = "wallet-cap"
	flagInitialBalance  = "treasury-initial-balance"

	configKeyDatabaseURL     = "database_url"
	configKeyListenAddr      = "listen_addr"
	configKeyAdminSigningKey = "admin_signing_key"
	configKeyAdminIssuer     = "admin_issuer"
	configKeyAllowedOrigins  = "allowed_origins"
	configKeyTickInterval    = "tick_interval"
	configKeyWeeklyXpCap     = "weekly_xp_cap"
	configKeyDailySpendLimit = "treasury_daily_limit"
	configKeyWalletCap       = "wallet_cap"
	configKeyInitialBalance  = "treasury_initial_balance"

	defaultDatabaseURL     = "sqlite:///tmp/economy.db"
	defaultListenAddr      = ":8080"
	defaultTickInterval    = 5 * time.Minute
	defaultWeeklyXpCap     = int64(1000)
	defaultDailySpendLimit = int64(5000)
	defaultWalletCap       = int64(100000)
	defaultInitialBalance  = int64(1000000)
)

type runtimeConfig struct {
	DatabaseURL     string
	ListenAddr      string
	AdminSigningKey string
	AdminIssuer     string
	AllowedOrigins  []string
	TickInterval    time.Duration
	WeeklyXpCap     int64
	DailySpendLimit int64
	WalletCap       int64
	InitialBalance  int64
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "economyd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "economyd",
		Short:         "Forum economy service: ledger, treasury, bots, ranks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL URL or sqlite path")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagAdminSigningKey, "", "HMAC key for admin bearer tokens")
	cmd.Flags().String(flagAdminIssuer, "economyd", "Expected issuer of admin tokens")
	cmd.Flags().String(flagAllowedOrigins, "", "Comma-delimited CORS origins")
	cmd.Flags().Duration(flagTickInterval, defaultTickInterval, "Interval between bot ticks")
	cmd.Flags().Int64(flagWeeklyXpCap, defaultWeeklyXpCap, "Maximum XP a user can earn per week")
	cmd.Flags().Int64(flagDailySpendLimit, defaultDailySpendLimit, "Treasury daily bot-spend limit")
	cmd.Flags().Int64(flagWalletCap, defaultWalletCap, "Default wallet balance ceiling")
	cmd.Flags().Int64(flagInitialBalance, defaultInitialBalance, "Treasury balance seeded on first boot")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		configKeyDatabaseURL:     "DATABASE_URL",
		configKeyListenAddr:      "LISTEN_ADDR",
		configKeyAdminSigningKey: "ADMIN_SIGNING_KEY",
		configKeyAdminIssuer:     "ADMIN_ISSUER",
		configKeyAllowedOrigins:  "ALLOWED_ORIGINS",
		configKeyTickInterval:    "TICK_INTERVAL",
		configKeyWeeklyXpCap:     "WEEKLY_XP_CAP",
		configKeyDailySpendLimit: "TREASURY_DAILY_LIMIT",
		configKeyWalletCap:       "WALLET_CAP",
		configKeyInitialBalance:  "TREASURY_INITIAL_BALANCE",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}
	flags := map[string]string{
		configKeyDatabaseURL:     flagDatabaseURL,
		configKeyListenAddr:      flagListenAddr,
		configKeyAdminSigningKey: flagAdminSigningKey,
		configKeyAdminIssuer:     flagAdminIssuer,
		configKeyAllowedOrigins:  flagAllowedOrigins,
		configKeyTickInterval:    flagTickInterval,
		configKeyWeeklyXpCap:     flagWeeklyXpCap,
		configKeyDailySpendLimit: flagDailySpendLimit,
		configKeyWalletCap:       flagWalletCap,
		configKeyInitialBalance:  flagInitialBalance,
	}
	for key, flag := range flags {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	cfg.AdminSigningKey = viper.GetString(configKeyAdminSigningKey)
	cfg.AdminIssuer = viper.GetString(configKeyAdminIssuer)
	cfg.AllowedOrigins = httpapi.ParseAllowedOrigins(viper.GetString(configKeyAllowedOrigins))
	cfg.TickInterval = viper.GetDuration(configKeyTickInterval)
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	cfg.WeeklyXpCap = viper.GetInt64(configKeyWeeklyXpCap)
	if cfg.WeeklyXpCap <= 0 {
		cfg.WeeklyXpCap = defaultWeeklyXpCap
	}
	cfg.DailySpendLimit = viper.GetInt64(configKeyDailySpendLimit)
	if cfg.DailySpendLimit <= 0 {
		cfg.DailySpendLimit = defaultDailySpendLimit
	}
	cfg.WalletCap = viper.GetInt64(configKeyWalletCap)
	if cfg.WalletCap < 0 {
		cfg.WalletCap = defaultWalletCap
	}
	cfg.InitialBalance = viper.GetInt64(configKeyInitialBalance)
	if cfg.InitialBalance < 0 {
		cfg.InitialBalance = defaultInitialBalance
	}
	if cfg.AdminSigningKey == "" {
		return fmt.Errorf("admin signing key is required")
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()

	if err := prepareSchema(gormDB, driver); err != nil {
		return err
	}

	store := gormstore.New(gormDB)
	botStore := gormstore.NewBotStore(gormDB)
	rankStore := gormstore.NewRankStore(gormDB)
	clock := func() int64 { return time.Now().UTC().Unix() }

	if err := store.EnsureTreasury(ctx, economy.Treasury{
		Balance:         cfg.InitialBalance,
		DailySpendLimit: cfg.DailySpendLimit,
		DayStartUnixUTC: clock() - (clock() % (24 * 60 * 60)),
		WalletCapAmount: cfg.WalletCap,
	}); err != nil {
		return fmt.Errorf("treasury seed: %w", err)
	}
	if err := rankStore.SeedTiers(ctx, defaultRankTiers(), defaultFeatureUnlocks()); err != nil {
		return fmt.Errorf("rank tier seed: %w", err)
	}

	ledger, err := economy.NewService(store, clock,
		economy.WithOperationLogger(zaplog.NewOperationLogger(logger)))
	if err != nil {
		return fmt.Errorf("ledger init: %w", err)
	}
	botService, err := bots.NewService(botStore, ledger, clock, logger)
	if err != nil {
		return fmt.Errorf("bot service init: %w", err)
	}
	rankService, err := ranks.NewService(rankStore, clock, cfg.WeeklyXpCap,
		ranks.WithOperationLogger(zaplog.NewXpLogger(logger)))
	if err != nil {
		return fmt.Errorf("rank service init: %w", err)
	}

	scheduler := jobs.NewScheduler(ledger, botService, cfg.TickInterval, logger)
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("scheduler start: %w", err)
	}
	defer scheduler.Stop()

	server, err := httpapi.NewServer(httpapi.Config{
		ListenAddr:      cfg.ListenAddr,
		AllowedOrigins:  cfg.AllowedOrigins,
		AdminSigningKey: cfg.AdminSigningKey,
		AdminIssuer:     cfg.AdminIssuer,
	}, logger, ledger, botService, rankService, store)
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}
	return server.Run(ctx)
}

func defaultRankTiers() []ranks.RankTier {
	return []ranks.RankTier{
		{TierID: "newcomer", Name: "Newcomer", MinXP: 0, Position: 1},
		{TierID: "regular", Name: "Regular", MinXP: 500, Position: 2},
		{TierID: "contributor", Name: "Contributor", MinXP: 2000, Position: 3},
		{TierID: "veteran", Name: "Veteran", MinXP: 8000, Position: 4},
		{TierID: "luminary", Name: "Luminary", MinXP: 25000, Position: 5},
	}
}

func defaultFeatureUnlocks() []ranks.FeatureUnlock {
	return []ranks.FeatureUnlock{
		{UnlockID: uuid.NewString(), RankTierID: "regular", FeatureKey: "marketplace.sell", Description: "List items in the marketplace"},
		{UnlockID: uuid.NewString(), RankTierID: "contributor", FeatureKey: "forum.signature", Description: "Custom forum signature"},
		{UnlockID: uuid.NewString(), RankTierID: "veteran", FeatureKey: "wallet.transfer", Description: "Send coins to other users"},
		{UnlockID: uuid.NewString(), RankTierID: "luminary", FeatureKey: "forum.badge", Description: "Exclusive profile badge"},
	}
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	gormConfig := &gorm.Config{}
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), gormConfig)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "economy.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

func prepareSchema(db *gorm.DB, driver string) error {
	if driver != "sqlite" {
		return nil
	}
	if err := db.AutoMigrate(gormstore.AllModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
