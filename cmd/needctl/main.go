// Command needctl administers needs outside the HTTP surface: posting,
// verifying and cancelling them, running reconciliation and minting
// development tokens.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"fundingledger/internal/bootstrap"
	"fundingledger/internal/domain"
	"fundingledger/internal/infra"
	"fundingledger/internal/ledger"
	"fundingledger/internal/middleware"
)

const commandTimeout = 30 * time.Second

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "needctl",
		Short:         "Administer funding needs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(createCmd(), verifyCmd(), cancelCmd(), showCmd(), reconcileCmd(), migrateCmd(), tokenCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withLedger opens the configured backend and runs fn against a ledger over it.
func withLedger(parent context.Context, fn func(ctx context.Context, l *ledger.Ledger, cfg *infra.Config) error) error {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.StoreDriver == infra.StoreDriverMemory {
		return errors.New("needctl requires STORE_DRIVER=postgres")
	}
	logger := infra.Component(infra.NewLogger(cfg.AppEnv), "needctl")

	ctx, cancel := context.WithTimeout(parent, commandTimeout)
	defer cancel()

	backend, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer backend.Close()

	return fn(ctx, backend.NewLedger(cfg, logger), cfg)
}

func createCmd() *cobra.Command {
	var (
		recipient, title, description, location string
		goal, currency, category, urgency        string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Post a new need (Pending, unverified)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			amount, err := decimal.NewFromString(strings.TrimSpace(goal))
			if err != nil {
				return fmt.Errorf("invalid --goal %q: %w", goal, err)
			}
			in := ledger.NewNeedInput{
				RecipientID: recipient,
				Title:       title,
				Description: description,
				Location:    location,
				GoalAmount:  amount,
			}
			if category != "" {
				c, ok := domain.ParseNeedCategory(category)
				if !ok {
					return fmt.Errorf("unsupported category %q", category)
				}
				in.Category = c
			}
			if urgency != "" {
				u, ok := domain.ParseNeedUrgency(urgency)
				if !ok {
					return fmt.Errorf("unsupported urgency %q", urgency)
				}
				in.Urgency = u
			}
			return withLedger(cmd.Context(), func(ctx context.Context, l *ledger.Ledger, cfg *infra.Config) error {
				in.Currency = currency
				if in.Currency == "" {
					in.Currency = cfg.DefaultCurrency
				}
				n, err := l.CreateNeed(ctx, in)
				if err != nil {
					return err
				}
				return printNeed(n)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&recipient, "recipient", "", "recipient user ID")
	f.StringVar(&title, "title", "", "short title")
	f.StringVar(&description, "description", "", "longer description")
	f.StringVar(&location, "location", "", "free-form location")
	f.StringVar(&goal, "goal", "", "goal amount, e.g. 1500.00")
	f.StringVar(&currency, "currency", "", "ISO 4217 code (default DEFAULT_CURRENCY)")
	f.StringVar(&category, "category", "", "Food, Education, Medical or Other")
	f.StringVar(&urgency, "urgency", "", "Low, Medium, High or Critical")
	_ = cmd.MarkFlagRequired("recipient")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("goal")
	return cmd
}

func verifyCmd() *cobra.Command {
	var verifier string
	cmd := &cobra.Command{
		Use:   "verify <need-id>",
		Short: "Mark a need verified so it accepts donations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l *ledger.Ledger, _ *infra.Config) error {
				n, err := l.VerifyNeed(ctx, args[0], verifier)
				if err != nil {
					return err
				}
				return printNeed(n)
			})
		},
	}
	cmd.Flags().StringVar(&verifier, "by", "", "verifier user ID")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <need-id>",
		Short: "Close a need to further donations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l *ledger.Ledger, _ *infra.Config) error {
				n, err := l.CancelNeed(ctx, args[0])
				if err != nil {
					return err
				}
				return printNeed(n)
			})
		},
	}
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <need-id>",
		Short: "Print a need with its funding progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l *ledger.Ledger, _ *infra.Config) error {
				n, err := l.GetNeed(ctx, args[0])
				if err != nil {
					return err
				}
				return printNeed(n)
			})
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Compare every need's amount with its donations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l *ledger.Ledger, _ *infra.Config) error {
				report, err := l.Reconcile(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("checked %d needs, %d drifted\n", report.Checked, len(report.Drifts))
				for _, d := range report.Drifts {
					fmt.Printf("  %s current=%s donations=%s diff=%s\n",
						d.NeedID, d.CurrentAmount.StringFixed(2), d.DonationSum.StringFixed(2), d.Difference().StringFixed(2))
				}
				if len(report.Drifts) > 0 {
					return fmt.Errorf("%d needs drifted", len(report.Drifts))
				}
				return nil
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			url := strings.TrimSpace(os.Getenv("DATABASE_URL"))
			if url == "" {
				return errors.New("DATABASE_URL is required")
			}
			logger := infra.Component(infra.NewLogger(os.Getenv("APP_ENV")), "needctl")
			return infra.RunMigrations(url, logger)
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		subject, role string
		ttl           time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed bearer token for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return errors.New("JWT_SECRET is required")
			}
			r, ok := domain.ParseRole(role)
			if !ok {
				return fmt.Errorf("unsupported role %q", role)
			}
			token, err := middleware.SignJWT(secret, domain.Caller{ID: subject, Role: r}, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "caller ID to embed")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleDonor), "Donor, Recipient or Admin")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}

type needView struct {
	ID            string  `json:"id"`
	RecipientID   string  `json:"recipientId"`
	Title         string  `json:"title"`
	Category      string  `json:"category"`
	Urgency       string  `json:"urgency"`
	Currency      string  `json:"currency"`
	GoalAmount    string  `json:"goalAmount"`
	CurrentAmount string  `json:"currentAmount"`
	Remaining     string  `json:"remaining"`
	Status        string  `json:"status"`
	IsVerified    bool    `json:"isVerified"`
	VerifiedBy    *string `json:"verifiedBy,omitempty"`
}

func printNeed(n *domain.Need) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(needView{
		ID:            n.ID,
		RecipientID:   n.RecipientID,
		Title:         n.Title,
		Category:      string(n.Category),
		Urgency:       string(n.Urgency),
		Currency:      n.Currency,
		GoalAmount:    n.GoalAmount.StringFixed(2),
		CurrentAmount: n.CurrentAmount.StringFixed(2),
		Remaining:     n.Remaining().StringFixed(2),
		Status:        string(n.Status),
		IsVerified:    n.IsVerified,
		VerifiedBy:    n.VerifiedBy,
	})
}
