package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"syntax/internal/domain/bank"
	"syntax/internal/domain/banktoken"
	"syntax/internal/domain/consent"
	"syntax/internal/domain/payment"
	"syntax/internal/domain/transaction"
	"syntax/internal/infrastructure/bankapi"
	"syntax/internal/infrastructure/postgres"
	"syntax/internal/interfaces/scheduler"
	"syntax/internal/shared/auth"
	"syntax/internal/shared/cache"
	"syntax/internal/shared/config"
	"syntax/internal/shared/logging"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Operator commands for the syntax API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(migrateCmd())
	root.AddCommand(sweepCmd())
	root.AddCommand(issueSessionCmd())

	return root
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logging.Init(cfg.Logging.Level, cfg.Logging.Pretty)
	return cfg, nil
}

func newGateways(cfg *config.Config) (bank.Registry, error) {
	return bankapi.NewRegistry(cfg.Banks.BaseURLs, bankapi.Config{
		Timeout:            cfg.Banks.Timeout,
		AuthTimeout:        cfg.Banks.AuthTimeout,
		RequestingBank:     cfg.Banks.ClientID,
		RequestingBankName: cfg.Banks.RequestingBankName,
	})
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply, roll back or inspect database migrations",
		Long:      "Runs the embedded goose migrations. Without an argument it applies all pending migrations.",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := postgres.New(cfg.Database.ConnectionString())
			if err != nil {
				return err
			}
			defer db.Close()

			return postgres.Migrate(cmd.Context(), db.DB, command)
		},
	}
}

func sweepCmd() *cobra.Command {
	var (
		timeout   time.Duration
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the payment and consent reconciliation once",
		Long: `Polls processing tax payments, fails payment approvals that timed out and
reconciles consents awaiting authorization, using CLIENT_ID and CLIENT_SECRET.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Banks.HasTeamCredentials() {
				return fmt.Errorf("CLIENT_ID and CLIENT_SECRET are required for a sweep")
			}

			db, err := postgres.New(cfg.Database.ConnectionString())
			if err != nil {
				return err
			}
			defer db.Close()

			gateways, err := newGateways(cfg)
			if err != nil {
				return err
			}

			tokens := banktoken.NewCache(gateways)
			consents := consent.NewService(postgres.NewConsentRepository(db), gateways, tokens)
			transactions := transaction.NewService(consents, gateways, tokens,
				cache.NewTTL[*bank.TransactionPage]("transactions", cfg.Cache.TransactionTTL))
			payments := payment.NewService(postgres.NewTaxPaymentRepository(db), gateways, tokens, transactions, payment.Options{
				AllowUnresolvedAccount: cfg.Payments.AllowUnresolvedAccount,
				ApprovalTimeout:        cfg.Payments.ApprovalTimeout,
			})

			reconciler := scheduler.NewReconciler(payments, consents, banktoken.Credentials{
				ClientID:     cfg.Banks.ClientID,
				ClientSecret: cfg.Banks.ClientSecret,
			}, batchSize)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			n, err := scheduler.RunOnce(ctx, reconciler.Jobs)
			log.Info().Int("jobs", n).Msg("sweep finished")
			fmt.Fprintf(cmd.OutOrStdout(), "ran %d jobs\n", n)
			return err
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Maximum duration of the sweep")
	cmd.Flags().IntVar(&batchSize, "batch-size", 100, "Maximum records of each kind to reconcile")

	return cmd
}

func issueSessionCmd() *cobra.Command {
	var clientID, clientSecret string

	cmd := &cobra.Command{
		Use:   "issue-session",
		Short: "Authenticate against AUTH_BANK and print a session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			authBank, err := bank.ParseID(cfg.Banks.AuthBank)
			if err != nil {
				return err
			}
			gateways, err := newGateways(cfg)
			if err != nil {
				return err
			}
			codec, err := auth.NewCodec(cfg.JWT.Secret, cfg.Encryption.Key, cfg.JWT.SessionTTL)
			if err != nil {
				return err
			}

			tok, err := banktoken.NewCache(gateways).Get(cmd.Context(), authBank, clientID, clientSecret)
			if err != nil {
				return fmt.Errorf("failed to authenticate with %s: %w", authBank, err)
			}
			session, err := codec.Issue(clientID, clientSecret, tok.AccessToken)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), session)
			return nil
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", "", "Team client id")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "Team client secret")
	_ = cmd.MarkFlagRequired("client-id")
	_ = cmd.MarkFlagRequired("client-secret")

	return cmd
}
