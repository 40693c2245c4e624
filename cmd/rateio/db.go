package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/billbatista/rateio/config"
	"github.com/billbatista/rateio/ledger"
	"github.com/billbatista/rateio/storage"
	"github.com/billbatista/rateio/user"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "%s database is up to date\n", cfg.Database.Driver)
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the ledgers and accounts listed in the configuration",
	Long: `Create the ledgers and accounts listed under "seed" in the configuration file.
Ledgers are matched by name and users by email, so running it twice is safe.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		return seedDatabase(cmd.Context(), ledger.NewRepository(db), user.NewRepository(db), cfg.Seed)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := storage.Migrate(db, cfg.Database.Driver); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func seedDatabase(ctx context.Context, ledgers ledger.Repository, users user.Repository, seed config.Seed) error {
	ids := make(map[string]uuid.UUID, len(seed.Ledgers))

	for _, sl := range seed.Ledgers {
		existing, err := ledgers.FindLedgerByName(ctx, sl.Name)
		if err != nil {
			return fmt.Errorf("looking up ledger %q: %w", sl.Name, err)
		}
		if existing != nil {
			slog.Info("ledger already exists", "name", sl.Name, "id", existing.ID)
			ids[sl.Name] = existing.ID
			continue
		}

		l, err := ledger.NewLedger(sl.Name, sl.Currency)
		if err != nil {
			return fmt.Errorf("ledger %q: %w", sl.Name, err)
		}
		if sl.OverallBudget != "" {
			budget, err := decimal.NewFromString(sl.OverallBudget)
			if err != nil {
				return fmt.Errorf("ledger %q: overall budget: %w", sl.Name, err)
			}
			if budget.IsNegative() {
				return fmt.Errorf("ledger %q: %w", sl.Name, ledger.ErrNegativeBudget)
			}
			l.OverallBudget = budget
		}
		if err := ledgers.CreateLedger(ctx, l); err != nil {
			return fmt.Errorf("creating ledger %q: %w", sl.Name, err)
		}

		for i, sp := range sl.Participants {
			p, err := ledger.NewParticipant(l.ID, sp.Code, sp.Name, i)
			if err != nil {
				return fmt.Errorf("ledger %q participant %d: %w", sl.Name, i, err)
			}
			if err := ledgers.CreateParticipant(ctx, p); err != nil {
				return fmt.Errorf("creating participant %q: %w", sp.Code, err)
			}
		}

		slog.Info("ledger created", "name", l.Name, "id", l.ID, "participants", len(sl.Participants))
		ids[sl.Name] = l.ID
	}

	for _, su := range seed.Users {
		existing, err := users.GetByEmail(ctx, su.Email)
		if err != nil {
			return fmt.Errorf("looking up user %q: %w", su.Email, err)
		}
		if existing != nil {
			slog.Info("user already exists", "email", existing.Email)
			continue
		}

		role, err := user.ParseRole(su.Role)
		if err != nil {
			return fmt.Errorf("user %q: %w", su.Email, err)
		}

		in := user.NewUser{Email: su.Email, Name: su.Name, Password: su.Password, Role: role}
		if su.Ledger != "" {
			id, ok := ids[su.Ledger]
			if !ok {
				l, err := ledgers.FindLedgerByName(ctx, su.Ledger)
				if err != nil {
					return fmt.Errorf("looking up ledger %q: %w", su.Ledger, err)
				}
				if l == nil {
					return fmt.Errorf("user %q: unknown ledger %q", su.Email, su.Ledger)
				}
				id = l.ID
			}
			in.LedgerID = &id
		}

		u, err := users.Create(ctx, in)
		if err != nil {
			return fmt.Errorf("creating user %q: %w", su.Email, err)
		}
		slog.Info("user created", "email", u.Email, "role", u.Role)
	}

	return nil
}
