package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gbl08ma/keybox"
	"github.com/gbl08ma/sqalx"
	"github.com/jmoiron/sqlx"
	"github.com/metroinfo/metrobot/config"
	"github.com/metroinfo/metrobot/types"
	"github.com/metroinfo/metrobot/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "github.com/lib/pq"
	_ "time/tzdata"
)

var (
	rdb           *sqlx.DB
	rootSqalxNode sqalx.Node
	secrets       *keybox.Keybox
	cfg           *config.Config

	mainLog       = zap.NewNop()
	discordLog    = zap.NewNop()
	telegramLog   = zap.NewNop()
	reconcilerLog = zap.NewNop()
	webLog        = zap.NewNop()

	// GitCommit is provided by govvv at compile-time
	GitCommit = "???"
	// BuildDate is provided by govvv at compile-time
	BuildDate = "???"
)

// RootCmd is the metrobot command line
var RootCmd = &cobra.Command{
	Use:               "metrobot",
	Short:             "Metro de Santiago status bot for Discord and Telegram",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setUp,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the status reconciler, the chat bots and the web endpoints",
	RunE:  run,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a single reconciliation sweep and exit",
	RunE:  syncOnce,
}

var netstatusCmd = &cobra.Command{
	Use:   "netstatus",
	Short: "Fetch and print the current network status",
	RunE:  printNetworkStatus,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := openDatabase(); err != nil {
			return err
		}
		defer rdb.Close()
		if err := types.Migrate(rootSqalxNode); err != nil {
			return err
		}
		mainLog.Info("database migrated")
		return nil
	},
}

func init() {
	RootCmd.AddCommand(runCmd, syncCmd, netstatusCmd, migrateCmd)
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		mainLog.Error("command failed", zap.Error(err))
		mainLog.Sync()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setUp loads the configuration and the keybox, and builds the loggers
func setUp(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.LoadConfig(EnvPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if DEBUG && cfg.Log.Level == "info" {
		cfg.Log.Level = "debug"
	}

	logger, err := utils.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	mainLog = logger.Named("main")
	discordLog = logger.Named("discord")
	telegramLog = logger.Named("telegram")
	reconcilerLog = logger.Named("reconciler")
	webLog = logger.Named("web")

	secrets, err = keybox.Open(SecretsPath)
	if err != nil {
		return fmt.Errorf("opening keybox: %w", err)
	}
	mainLog.Debug("keybox opened", zap.String("path", SecretsPath))
	return nil
}

func openDatabase() error {
	mainLog.Info("opening database...")
	databaseURI, present := secrets.Get("databaseURI")
	if !present {
		return fmt.Errorf("database connection string not present in keybox")
	}
	var err error
	rdb, err = sqlx.Open("postgres", databaseURI)
	if err != nil {
		return err
	}

	err = rdb.Ping()
	if err != nil {
		rdb.Close()
		return err
	}
	rdb.SetMaxOpenConns(cfg.Database.MaxConns)

	rootSqalxNode, err = sqalx.New(rdb)
	if err != nil {
		rdb.Close()
		return err
	}
	mainLog.Info("database opened")
	return nil
}

func run(cmd *cobra.Command, args []string) error {
	mainLog.Info("server starting",
		zap.String("commit", GitCommit),
		zap.String("build_date", BuildDate))

	if err := openDatabase(); err != nil {
		return err
	}
	defer rdb.Close()

	if err := SetUpStatusSource(); err != nil {
		return err
	}

	bot, err := SetUpDiscordBot()
	if err != nil {
		return err
	}

	SetUpReconciler(bot.Platform())
	defer TearDownReconciler()

	if err := StartDiscordBot(bot); err != nil {
		return err
	}
	defer bot.Stop()

	tgBot, err := SetUpTelegramBot(cmd.Context())
	if err != nil {
		return err
	}
	if tgBot != nil {
		defer tgBot.Stop()
	}

	go StatsSender()
	go WebServer()

	// Wait here until CTRL-C or other term signal is received.
	mainLog.Info("bot is now running")
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc
	mainLog.Info("shutting down")
	return nil
}
