package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"tms-go/internal/app"
	"tms-go/internal/config"
	"tms-go/internal/database"
	"tms-go/internal/identity"
	"tms-go/internal/model"
	"tms-go/internal/store"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "Ingest", "Search").
func newApp(operation, passphrase string) (*app.App, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewApp(cfg, operation, passphrase)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// promptPassphrase reads a passphrase from the terminal without echo.
func promptPassphrase(confirm bool) (string, error) {
	fmt.Fprint(os.Stderr, "Passphrase: ")
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if len(pass) == 0 {
		return "", fmt.Errorf("passphrase must not be empty")
	}

	if confirm {
		fmt.Fprint(os.Stderr, "Confirm passphrase: ")
		again, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading passphrase confirmation: %w", err)
		}
		if string(pass) != string(again) {
			return "", fmt.Errorf("passphrases do not match")
		}
	}

	return string(pass), nil
}

var rootCmd = &cobra.Command{
	Use:   "tms",
	Short: "Torrent metadata store",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		// Generate a new node ID
		nodeID := uuid.New().String()

		cfg := config.NewConfig(nodeID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Node ID: %s\n", nodeID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Node ID:  %s\n", cfg.NodeID)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:  %s\n", cfg.LogDir)
		fmt.Printf("Database: %s (%s)\n", cfg.Database.Type, cfg.Database.DataDir)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the node's signing identity",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a signing key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		if _, err := os.Stat(cfg.Identity.PrivateKeyPath); err == nil {
			return fmt.Errorf("key already exists at %s", cfg.Identity.PrivateKeyPath)
		}

		passphrase, err := promptPassphrase(true)
		if err != nil {
			return err
		}

		key, err := identity.Generate()
		if err != nil {
			return fmt.Errorf("generating key pair: %w", err)
		}
		if err := key.Save(cfg.Identity.PublicKeyPath, cfg.Identity.PrivateKeyPath, passphrase); err != nil {
			return fmt.Errorf("saving key pair: %w", err)
		}

		fmt.Printf("Public key: %s\n", hex.EncodeToString(key.PublicKey()))
		fmt.Printf("Key files written under %s\n", cfg.Identity.PrivateKeyPath)
		return nil
	},
}

// migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Bring the database schema up to date",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		dbPath, err := app.DatabasePath(cfg.Database)
		if err != nil {
			return err
		}

		db, err := database.Open(dbPath, database.Options{})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		if err := db.MigrateUp(); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}

		fmt.Println("Database schema is up to date.")
		return nil
	},
}

// add command
var addCmd = &cobra.Command{
	Use:   "add INFOHASH TITLE",
	Short: "Author a torrent record under the node's identity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		size, _ := cmd.Flags().GetUint64("size")
		tags, _ := cmd.Flags().GetString("tags")
		tracker, _ := cmd.Flags().GetString("tracker")
		xxx, _ := cmd.Flags().GetBool("xxx")

		infohash, err := hex.DecodeString(args[0])
		if err != nil {
			return fmt.Errorf("parsing infohash: %w", err)
		}

		passphrase, err := promptPassphrase(false)
		if err != nil {
			return err
		}

		a, err := newApp("Add", passphrase)
		if err != nil {
			return err
		}
		defer a.Close()

		rowID, err := a.Service().AddLocalTorrent(cmd.Context(), store.NewTorrent{
			InfoHash:    infohash,
			Size:        size,
			Title:       args[1],
			Tags:        tags,
			TrackerInfo: tracker,
			XXX:         xxx,
		})
		if err != nil {
			return fmt.Errorf("adding torrent: %w", err)
		}

		fmt.Printf("Added torrent #%d\n", rowID)
		return nil
	},
}

// ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest FILE...",
	Short: "Ingest compressed metadata batches",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		skipPersonal, _ := cmd.Flags().GetBool("skip-personal")

		passphrase := ""
		if skipPersonal {
			// The node's public key is needed to recognize its own records.
			var err error
			passphrase, err = promptPassphrase(false)
			if err != nil {
				return err
			}
		}

		a, err := newApp("Ingest", passphrase)
		if err != nil {
			return err
		}
		defer a.Close()

		var total, fresh, dup, dropped int
		for _, path := range args {
			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading batch file: %w", err)
			}

			results, err := a.Service().ProcessCompressedBatch(cmd.Context(), raw, store.ProcessOptions{
				SkipPersonal: skipPersonal,
			})
			if err != nil {
				return fmt.Errorf("ingesting %s: %w", path, err)
			}

			total += len(results)
			for _, r := range results {
				switch r.State {
				case model.StateNew:
					fresh++
				case model.StateDuplicate:
					dup++
				default:
					dropped++
				}
			}
		}
		fmt.Printf("Ingested %d record(s): %d new, %d duplicate, %d dropped\n",
			total, fresh, dup, dropped)
		return nil
	},
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Export records as a compressed metadata batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		channel, _ := cmd.Flags().GetString("channel")

		a, err := newApp("Export", "")
		if err != nil {
			return err
		}
		defer a.Close()

		q := database.QueryFilter{Last: limit}
		if channel != "" {
			pk, err := hex.DecodeString(channel)
			if err != nil {
				return fmt.Errorf("parsing channel key: %w", err)
			}
			q.ChannelPK = pk
		}

		batch, err := a.Service().GenerateCompressedBatch(cmd.Context(), q)
		if err != nil {
			return fmt.Errorf("generating batch: %w", err)
		}

		if err := os.WriteFile(args[0], batch, 0644); err != nil {
			return fmt.Errorf("writing batch file: %w", err)
		}

		fmt.Printf("Wrote %d byte(s) to %s\n", len(batch), args[0])
		return nil
	},
}

// search command
var searchCmd = &cobra.Command{
	Use:   "search TEXT",
	Short: "Ranked full-text search over torrent titles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		first, _ := cmd.Flags().GetInt("first")
		last, _ := cmd.Flags().GetInt("last")
		hideXXX, _ := cmd.Flags().GetBool("hide-xxx")

		a, err := newApp("Search", "")
		if err != nil {
			return err
		}
		defer a.Close()

		resp, err := a.Service().GetEntries(cmd.Context(), database.QueryFilter{
			TxtFilter: args[0],
			HideXXX:   hideXXX,
			First:     first,
			Last:      last,
		})
		if err != nil {
			return fmt.Errorf("searching: %w", err)
		}

		printSummaries(resp)
		return nil
	},
}

// popular command
var popularCmd = &cobra.Command{
	Use:   "popular",
	Short: "List the liveliest torrents of the last day",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Popular", "")
		if err != nil {
			return err
		}
		defer a.Close()

		resp, err := a.Service().GetEntries(cmd.Context(), database.QueryFilter{Popular: true})
		if err != nil {
			return fmt.Errorf("listing popular torrents: %w", err)
		}

		printSummaries(resp)
		return nil
	},
}

// autocomplete command
var autocompleteCmd = &cobra.Command{
	Use:   "autocomplete PREFIX",
	Short: "Suggest search completions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("AutoComplete", "")
		if err != nil {
			return err
		}
		defer a.Close()

		terms, err := a.Service().GetAutoCompleteTerms(cmd.Context(), args[0], limit)
		if err != nil {
			return fmt.Errorf("fetching completions: %w", err)
		}

		for _, t := range terms {
			fmt.Println(t)
		}
		return nil
	},
}

// health command
var healthCmd = &cobra.Command{
	Use:   "health INFOHASH SEEDERS LEECHERS",
	Short: "Record a self-checked health observation",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		infohash, err := hex.DecodeString(args[0])
		if err != nil {
			return fmt.Errorf("parsing infohash: %w", err)
		}
		var seeders, leechers uint32
		if _, err := fmt.Sscanf(args[1], "%d", &seeders); err != nil {
			return fmt.Errorf("parsing seeders: %w", err)
		}
		if _, err := fmt.Sscanf(args[2], "%d", &leechers); err != nil {
			return fmt.Errorf("parsing leechers: %w", err)
		}

		a, err := newApp("Health", "")
		if err != nil {
			return err
		}
		defer a.Close()

		updated, err := a.Service().ProcessTorrentHealth(cmd.Context(), &model.HealthInfo{
			InfoHash:    infohash,
			Seeders:     seeders,
			Leechers:    leechers,
			LastCheck:   uint32(nowUnix()),
			SelfChecked: true,
		})
		if err != nil {
			return fmt.Errorf("recording health: %w", err)
		}

		if updated {
			fmt.Println("Health updated.")
		} else {
			fmt.Println("Existing health is fresher; kept.")
		}
		return nil
	},
}

// purge command
var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove tombstoned records",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Purge", "")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Service().PurgeDeleted(cmd.Context())
		if err != nil {
			return fmt.Errorf("purging: %w", err)
		}

		fmt.Printf("Purged %d record(s)\n", n)
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload an encrypted database snapshot to the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := promptPassphrase(false)
		if err != nil {
			return err
		}

		a, err := newApp("Backup", "")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Backup(cmd.Context(), passphrase); err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Println("Snapshot uploaded.")
		return nil
	},
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore DEST",
	Short: "Download and decrypt the vault snapshot to DEST",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := promptPassphrase(false)
		if err != nil {
			return err
		}

		a, err := newApp("Restore", "")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Restore(cmd.Context(), passphrase, args[0]); err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		fmt.Printf("Snapshot restored to %s\n", args[0])
		return nil
	},
}

func nowUnix() int64 {
	return time.Now().Unix()
}

func printSummaries(resp *store.QueryResponse) {
	if len(resp.Results) == 0 {
		fmt.Println("No results.")
		return
	}

	for _, r := range resp.Results {
		seeders, leechers := uint32(0), uint32(0)
		if r.Health != nil {
			seeders, leechers = r.Health.Seeders, r.Health.Leechers
		}
		fmt.Printf("#%-8d %4dS/%-4dL  %s\n", r.RowID, seeders, leechers, r.Title)
	}
	fmt.Printf("\nShowing %d-%d of %d\n", resp.First, resp.Last, resp.Total)
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().Uint64("size", 0, "Torrent size in bytes")
	addCmd.Flags().String("tags", "", "Category tags")
	addCmd.Flags().String("tracker", "", "Tracker URL")
	addCmd.Flags().Bool("xxx", false, "Mark the record as adult content")
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().Bool("skip-personal", false, "Drop records signed by this node's own key")
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().IntP("limit", "n", 1000, "Maximum number of records to export")
	exportCmd.Flags().String("channel", "", "Only export records from this channel key (hex)")
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().Int("first", 1, "First result to show (1-based)")
	searchCmd.Flags().Int("last", 50, "Last result to show")
	searchCmd.Flags().Bool("hide-xxx", false, "Hide adult content")
	rootCmd.AddCommand(popularCmd)
	rootCmd.AddCommand(autocompleteCmd)
	autocompleteCmd.Flags().IntP("limit", "n", 10, "Maximum number of suggestions")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
}
