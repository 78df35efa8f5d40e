package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/eddiefleurent/portfolio_scanner/internal/api"
	"github.com/eddiefleurent/portfolio_scanner/internal/models"
	"github.com/eddiefleurent/portfolio_scanner/internal/scanner"
	"github.com/eddiefleurent/portfolio_scanner/internal/storage"
)

const shutdownTimeout = 30 * time.Second

func scanCmd() *cobra.Command {
	var (
		accountID string
		riskLevel string
		noAlerts  bool
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run every enabled strategy once and print the recommendations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			req, err := cfg.NewScanRequest(accountID, models.RiskLevel(riskLevel))
			if err != nil {
				return err
			}
			if noAlerts {
				req.CreateAlerts = false
			}

			store, err := storage.NewStorage(cfg.Storage.Path)
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}
			defer func() {
				if cerr := store.Close(); cerr != nil {
					logger.WithError(cerr).Warn("Failed to close storage")
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sc := scanner.NewFromConfig(cfg, newGateway(cfg, logger), store, logger)
			result := sc.Run(ctx, req)
			return printResult(cmd.OutOrStdout(), result, asJSON)
		},
	}

	cmd.Flags().StringVarP(&accountID, "account", "a", "", "Scan a single account (default: all accounts)")
	cmd.Flags().StringVarP(&riskLevel, "risk-level", "r", "", "Override every strategy's risk level (low, medium, high)")
	cmd.Flags().BoolVar(&noAlerts, "no-alerts", false, "Store recommendations without creating alerts")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	return cmd
}

// printResult writes the summary, or the whole result with --json. Scanner
// errors are listed but do not fail the command.
func printResult(w io.Writer, result *scanner.UnifiedResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if _, err := fmt.Fprintln(w, result.RecommendationSummary); err != nil {
		return err
	}
	for _, e := range result.Errors {
		if _, err := fmt.Fprintf(w, "error: %s: %s\n", e.Scanner, e.Message); err != nil {
			return err
		}
	}
	return nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve scans, recommendations and alerts over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := storage.NewStorage(cfg.Storage.Path)
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}
			defer func() {
				if cerr := store.Close(); cerr != nil {
					logger.WithError(cerr).Warn("Failed to close storage")
				}
			}()

			sc := scanner.NewFromConfig(cfg, newGateway(cfg, logger), store, logger)
			server := api.NewServer(cfg, store, sc, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				logger.Info("Shutdown signal received, stopping server...")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
			logger.Info("Server stopped")
			return nil
		},
	}
}

// seedFile is the document read by the import command.
type seedFile struct {
	Accounts []models.Account `yaml:"accounts"`
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Load accounts and their positions from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			f, err := os.Open(args[0]) // #nosec G304 -- path is a user-provided seed file
			if err != nil {
				return fmt.Errorf("opening seed file: %w", err)
			}
			defer func() { _ = f.Close() }()

			accounts, err := parseSeed(f)
			if err != nil {
				return err
			}

			store, err := storage.NewStorage(cfg.Storage.Path)
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}
			defer func() {
				if cerr := store.Close(); cerr != nil {
					logger.WithError(cerr).Warn("Failed to close storage")
				}
			}()

			n, err := importAccounts(cmd.Context(), store, accounts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d account(s)\n", n)
			return nil
		},
	}
}

// parseSeed decodes and checks a seed document.
func parseSeed(r io.Reader) ([]models.Account, error) {
	var seed seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}
	if len(seed.Accounts) == 0 {
		return nil, errors.New("seed file has no accounts")
	}

	seen := make(map[string]bool, len(seed.Accounts))
	for i := range seed.Accounts {
		a := &seed.Accounts[i]
		if a.ID == "" {
			return nil, fmt.Errorf("accounts[%d]: id is required", i)
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("accounts[%d]: duplicate id %q", i, a.ID)
		}
		seen[a.ID] = true
		if a.RiskLevel != "" && !a.RiskLevel.Valid() {
			return nil, fmt.Errorf("account %s: invalid risk_level %q", a.ID, a.RiskLevel)
		}
		for j := range a.Positions {
			p := &a.Positions[j]
			if p.ID == "" {
				return nil, fmt.Errorf("account %s: positions[%d]: id is required", a.ID, j)
			}
			if p.Type == models.PositionOption && !p.OptionType.Valid() {
				return nil, fmt.Errorf("account %s: position %s: option_type must be call or put", a.ID, p.ID)
			}
		}
	}
	return seed.Accounts, nil
}

// importAccounts saves each account, replacing any stored one with the same ID.
func importAccounts(ctx context.Context, store storage.Interface, accounts []models.Account) (int, error) {
	for i := range accounts {
		if err := store.SaveAccount(ctx, &accounts[i]); err != nil {
			return i, fmt.Errorf("saving account %s: %w", accounts[i].ID, err)
		}
	}
	return len(accounts), nil
}
