package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"bountyboard/internal/config"
	"bountyboard/internal/db"
	"bountyboard/internal/discover"
	"bountyboard/internal/domain"
	"bountyboard/internal/engine"
	"bountyboard/internal/github"
	"bountyboard/internal/migrate"
	"bountyboard/internal/orchestrator"
	"bountyboard/internal/repo"
	"bountyboard/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "bountyd",
	Short: "Bountyboard CLI",
	Long: `Bountyboard tracks open-source bounties from discovery to payout.
- Workspace: the .bountyboard directory holding the SQLite database.
- Tenants: hosting domains with their own branding and bounty counters.
- Bounties: work items moving open -> claimed -> in_progress -> submitted -> vetting -> completed -> paid.
- Import: map CSV exports from other platforms onto bounties ('bountyd import').
- Discover: scan GitHub and the platform feed for new candidates ('bountyd discover').
- Ledger: payouts, fees, and refunds with settlement tracking.
- Event log: diary of changes, view with 'bountyd log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BOUNTYBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", "local-user", "acting user identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(bountyCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(discoverCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage configuration"}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default bountyd.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate bountyd.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	})
	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tenant", Short: "Manage tenants"}
	cmd.AddCommand(tenantListCmd())
	cmd.AddCommand(tenantCreateCmd())
	cmd.AddCommand(tenantSyncCmd())
	cmd.AddCommand(tenantStatsCmd())
	return cmd
}

func tenantListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListTenants(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Host", "Name", "Bounties", "Open", "Paid"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.Host, t.Name, t.BountyCount, t.OpenCount, fmt.Sprintf("%.2f", t.TotalPaid)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func tenantCreateCmd() *cobra.Command {
	var host, name, color, logo, tagline string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.CreateTenant(ctx, engine.CreateTenantParams{
					Host:         host,
					Name:         name,
					PrimaryColor: color,
					LogoURL:      logo,
					Tagline:      tagline,
					ActorID:      viper.GetString("user-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "tenant host")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&color, "color", "", "primary color")
	cmd.Flags().StringVar(&logo, "logo", "", "logo URL")
	cmd.Flags().StringVar(&tagline, "tagline", "", "tagline")
	_ = cmd.MarkFlagRequired("host")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

// tenantSyncCmd upserts the tenants declared in bountyd.yml into the DB.
func tenantSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Upsert tenants from bountyd.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				now := time.Now().UTC().Format(time.RFC3339)
				for _, tc := range cfg.Tenants {
					t := domain.Tenant{
						ID:           tc.ID,
						Host:         tc.Host,
						Name:         tc.Name,
						PrimaryColor: tc.PrimaryColor,
						LogoURL:      tc.LogoURL,
						Tagline:      tc.Tagline,
						CreatedAt:    now,
						UpdatedAt:    now,
					}
					if err := r.UpsertTenant(ctx, t); err != nil {
						return err
					}
					fmt.Println("synced", tc.ID, "->", tc.Host)
				}
				return nil
			})
		},
	}
}

func tenantStatsCmd() *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show tenant stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				t, err := r.GetTenant(ctx, tenantID)
				if err != nil {
					return err
				}
				counts, err := r.CountBountiesByStatus(ctx, t.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"tenant_id":     t.ID,
					"bounty_count":  t.BountyCount,
					"open_count":    t.OpenCount,
					"total_paid":    t.TotalPaid,
					"status_counts": counts,
				})
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func bountyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "bounty", Short: "Manage bounties"}
	cmd.AddCommand(bountyListCmd())
	cmd.AddCommand(bountyShowCmd())
	cmd.AddCommand(bountyCreateCmd())
	cmd.AddCommand(bountySetStatusCmd())
	return cmd
}

func bountyListCmd() *cobra.Command {
	var tenantID, status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List bounties",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListBounties(ctx, repo.BountyFilters{
					TenantID: tenantID,
					Status:   status,
					Limit:    limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Value", "Source", "Assignee"})
				for _, b := range items {
					value := ""
					if b.Value != nil {
						value = fmt.Sprintf("%.2f %s", *b.Value, b.Currency)
					}
					assignee := ""
					if b.AssigneeID != nil {
						assignee = *b.AssigneeID
					}
					tw.AppendRow(table.Row{b.ID, b.Title, b.Status, value, b.Source, assignee})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "filter by tenant")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func bountyShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <bounty-id>",
		Short: "Show a bounty with its proofs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				b, err := r.GetBounty(ctx, args[0])
				if err != nil {
					return err
				}
				proofs, err := r.ListProofsForBounty(ctx, b.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"bounty": b, "proofs": proofs})
			})
		},
	}
	return cmd
}

func bountyCreateCmd() *cobra.Command {
	var tenantID, title, source, sourceURL, repoName, org, labels, tech string
	var value float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create bounty",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				params := engine.CreateBountyParams{
					TenantID:  tenantID,
					Title:     title,
					Source:    source,
					SourceURL: sourceURL,
					Repo:      repoName,
					Org:       org,
					ActorID:   viper.GetString("user-id"),
				}
				if cmd.Flags().Changed("value") {
					params.Value = &value
				}
				if labels != "" {
					params.Labels = splitCSV(labels)
				}
				if tech != "" {
					params.Technologies = splitCSV(tech)
				}
				b, err := e.CreateBounty(ctx, params)
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&title, "title", "", "bounty title")
	cmd.Flags().Float64Var(&value, "value", 0, "reward amount")
	cmd.Flags().StringVar(&source, "source", "", "source platform")
	cmd.Flags().StringVar(&sourceURL, "url", "", "source URL")
	cmd.Flags().StringVar(&repoName, "repo", "", "repository")
	cmd.Flags().StringVar(&org, "org", "", "organization")
	cmd.Flags().StringVar(&labels, "labels", "", "comma-separated labels")
	cmd.Flags().StringVar(&tech, "tech", "", "comma-separated technologies")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func bountySetStatusCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "set-status <bounty-id> <status>",
		Short: "Move a bounty through its lifecycle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				status := args[1]
				b, err := e.UpdateBounty(ctx, args[0], engine.UpdateBountyParams{
					Status:  &status,
					Force:   force,
					ActorID: viper.GetString("user-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "skip transition validation")
	return cmd
}

func importCmd() *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import bounties from a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				res, err := e.ImportBounties(ctx, tenantID, args[0], string(data), viper.GetString("user-id"))
				if err != nil {
					return err
				}
				fmt.Printf("imported %d, skipped %d\n", res.Imported, res.Skipped)
				for _, msg := range res.Errors {
					fmt.Println("  ", msg)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func discoverCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Scan sources for bounty candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			gh := github.New(cfg.GitHub.BaseURL, cfg.GitHub.Token)
			svc := discover.New(gh, cfg.Discovery.GitHubQuery, cfg.Discovery.PlatformFeedURL)
			res, err := svc.Run(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(res)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Score", "Title", "Value", "Source", "URL"})
			for _, c := range res.Candidates {
				value := ""
				if c.Value != nil {
					value = fmt.Sprintf("%.2f", *c.Value)
				}
				tw.AppendRow(table.Row{c.Score, c.Title, value, c.Source, c.SourceURL})
			}
			tw.Render()
			for _, msg := range res.Errors {
				fmt.Println("warning:", msg)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max candidates")
	return cmd
}

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "ledger", Short: "Payout ledger"}
	cmd.AddCommand(ledgerListCmd())
	cmd.AddCommand(ledgerAddCmd())
	cmd.AddCommand(ledgerSettleCmd())
	cmd.AddCommand(ledgerFailCmd())
	return cmd
}

func ledgerListCmd() *cobra.Command {
	var bountyID, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListLedgerEntries(ctx, repo.LedgerFilters{
					BountyID: bountyID,
					Status:   status,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Bounty", "Type", "Status", "Amount", "Method"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.ID, e.BountyID, e.Type, e.Status, fmt.Sprintf("%.2f %s", e.Amount, e.Currency), e.PaymentMethod})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&bountyID, "bounty", "", "filter by bounty")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	return cmd
}

func ledgerAddCmd() *cobra.Command {
	var bountyID, entryType, method, reference string
	var amount float64
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a ledger entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				entry, err := e.CreateLedgerEntry(ctx, engine.CreateLedgerEntryParams{
					BountyID:      bountyID,
					Type:          entryType,
					Amount:        amount,
					PaymentMethod: method,
					Reference:     reference,
					ActorID:       viper.GetString("user-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}
	cmd.Flags().StringVar(&bountyID, "bounty", "", "bounty id")
	cmd.Flags().StringVar(&entryType, "type", "payout", "payout|fee|refund|adjustment")
	cmd.Flags().Float64Var(&amount, "amount", 0, "amount")
	cmd.Flags().StringVar(&method, "method", "manual", "stripe|wise|crypto|manual")
	cmd.Flags().StringVar(&reference, "reference", "", "payment reference")
	_ = cmd.MarkFlagRequired("bounty")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func ledgerSettleCmd() *cobra.Command {
	var reference string
	cmd := &cobra.Command{
		Use:   "settle <entry-id>",
		Short: "Settle a pending ledger entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				entry, err := e.SettleLedgerEntry(ctx, args[0], reference, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}
	cmd.Flags().StringVar(&reference, "reference", "", "payment reference")
	return cmd
}

func ledgerFailCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "fail <entry-id>",
		Short: "Mark a pending ledger entry failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				entry, err := e.FailLedgerEntry(ctx, args[0], reason, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "failure reason")
	return cmd
}

func notifyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "notify", Short: "Notifications"}
	cmd.AddCommand(notifyListCmd())
	cmd.AddCommand(notifyPrefsCmd())
	return cmd
}

func notifyListCmd() *cobra.Command {
	var unread bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListNotifications(ctx, viper.GetString("user-id"), unread, 100)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"When", "Kind", "Title", "Read"})
				for _, n := range items {
					tw.AppendRow(table.Row{n.CreatedAt, n.Kind, n.Title, n.Read})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "unread only")
	return cmd
}

func notifyPrefsCmd() *cobra.Command {
	var updates, payouts, digest, slack bool
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or set notification preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor := viper.GetString("user-id")
			changed := cmd.Flags().Changed("bounty-updates") ||
				cmd.Flags().Changed("payout-alerts") ||
				cmd.Flags().Changed("discovery-digest") ||
				cmd.Flags().Changed("slack-dms")
			if !changed {
				return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
					prefs, err := r.GetNotificationPrefs(ctx, actor)
					if err != nil {
						return err
					}
					return printJSONOrTable(prefs)
				})
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				current, err := e.Repo.GetNotificationPrefs(ctx, actor)
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("bounty-updates") {
					current.BountyUpdates = updates
				}
				if cmd.Flags().Changed("payout-alerts") {
					current.PayoutAlerts = payouts
				}
				if cmd.Flags().Changed("discovery-digest") {
					current.DiscoveryDigest = digest
				}
				if cmd.Flags().Changed("slack-dms") {
					current.SlackDMs = slack
				}
				current.UserID = actor
				saved, err := e.SaveNotificationPrefs(ctx, current)
				if err != nil {
					return err
				}
				return printJSONOrTable(saved)
			})
		},
	}
	cmd.Flags().BoolVar(&updates, "bounty-updates", true, "status change alerts")
	cmd.Flags().BoolVar(&payouts, "payout-alerts", true, "payout alerts")
	cmd.Flags().BoolVar(&digest, "discovery-digest", false, "discovery digest")
	cmd.Flags().BoolVar(&slack, "slack-dms", false, "slack direct messages")
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Event log"}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var limit int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.LatestEvents(ctx, limit, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + "/" + e.EntityID, e.UserID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max events")
	cmd.Flags().StringVar(&evtType, "type", "", "filter by event type")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "filter by entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "filter by entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyRevokeCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				raw := uuid.NewString() + uuid.NewString()
				key := domain.APIKey{
					ID:        uuid.NewString(),
					UserID:    viper.GetString("user-id"),
					Name:      name,
					KeyHash:   repo.HashAPIKey(raw),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				// The raw key is shown once; only the hash is stored.
				fmt.Println("api key:", raw)
				fmt.Println("key id: ", key.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func apikeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0], viper.GetString("user-id"))
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()

			e := engine.New(conn)
			seedTenants(cmd.Context(), e.Repo, cfg)

			secret := os.Getenv("BOUNTYBOARD_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("BOUNTYBOARD_JWT_SECRET is required for bearer auth")
			}
			gh := github.New(cfg.GitHub.BaseURL, cfg.GitHub.Token)
			orch := orchestrator.New(cfg.Orchestrator.BaseURL, time.Duration(cfg.Orchestrator.TimeoutSeconds)*time.Second)
			disc := discover.New(gh, cfg.Discovery.GitHubQuery, cfg.Discovery.PlatformFeedURL)

			handler, err := server.New(server.Config{
				Engine:       e,
				BasePath:     basePath,
				Auth:         server.AuthConfig{JWTSecret: secret, EnableDevLogin: devLogin, Logger: logger},
				GitHub:       gh,
				Orchestrator: orch,
				Discovery:    disc,
			})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(e, cfg.Webhooks, logger)

			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info("serving bountyboard api",
				zap.String("addr", addr),
				zap.String("base_path", basePath),
				zap.Int("tenants", len(cfg.Tenants)),
				zap.Int("webhooks", len(cfg.Webhooks)))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8700", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose /auth/dev/login (local only)")
	return cmd
}

func seedTenants(ctx context.Context, r repo.Repo, cfg *config.Config) {
	now := time.Now().UTC().Format(time.RFC3339)
	for _, tc := range cfg.Tenants {
		t := domain.Tenant{
			ID:           tc.ID,
			Host:         tc.Host,
			Name:         tc.Name,
			PrimaryColor: tc.PrimaryColor,
			LogoURL:      tc.LogoURL,
			Tagline:      tc.Tagline,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := r.UpsertTenant(ctx, t); err != nil {
			fmt.Println("warning: seed tenant", tc.ID, "failed:", err)
		}
	}
}

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, engine.New(conn))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
