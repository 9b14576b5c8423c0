package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tms-go/internal/config"
	"tms-go/internal/database"
	"tms-go/internal/encryption"
	"tms-go/internal/identity"
	"tms-go/internal/metrics"
	"tms-go/internal/store"
	"tms-go/internal/vault"
)

// App is the application layer between the CLI and the store service.
// It constructs all dependencies from config and manages the DB lifecycle
// on Close.
type App struct {
	cfg     *config.Config
	db      *database.MetadataDB
	service *store.Service
	metrics *metrics.Metrics
	reg     *prometheus.Registry
	logFile *os.File
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "Ingest", "Search").
// passphrase unlocks the node's signing key; empty means the app runs
// without a local identity. The caller must call Close when done.
func NewApp(cfg *config.Config, operation, passphrase string) (*App, error) {
	dbPath, err := DatabasePath(cfg.Database)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(dbPath, database.Options{DisableSync: cfg.Database.DisableSync})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	var key *identity.Key
	if passphrase != "" {
		key, err = identity.Load(cfg.Identity.PrivateKeyPath, passphrase)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("unlocking identity: %w", err)
		}
	}

	opID := operation + "-" + time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	svc := store.NewService(db, key, m, &slogAdapter{l: logger}, store.RealClock{}, store.Options{
		BatchTarget:   time.Duration(cfg.Ingest.BatchTargetMS) * time.Millisecond,
		MinBatch:      cfg.Ingest.MinBatch,
		MaxBatch:      cfg.Ingest.MaxBatch,
		ExternalSleep: time.Duration(cfg.Ingest.ExternalSleepMS) * time.Millisecond,
		Workers:       cfg.Ingest.Workers,
	})

	return &App{
		cfg:     cfg,
		db:      db,
		service: svc,
		metrics: m,
		reg:     reg,
		logFile: logFile,
	}, nil
}

// DatabasePath resolves the SQLite file path for a database config.
func DatabasePath(cfg config.DatabaseConfig) (string, error) {
	switch cfg.Type {
	case "memory":
		return ":memory:", nil
	case "sqlite", "":
		if cfg.DataDir == "" {
			return "", fmt.Errorf("sqlite database requires data_dir to be set")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return "", fmt.Errorf("creating data directory: %w", err)
		}
		return filepath.Join(cfg.DataDir, "tms.db"), nil
	default:
		return "", fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// Service returns the wired store service.
func (a *App) Service() *store.Service {
	return a.service
}

// MetricsHandler serves this app's Prometheus registry.
func (a *App) MetricsHandler() http.Handler {
	return metrics.Handler(a.reg)
}

// MigrateUp brings the database schema to the latest version.
func (a *App) MigrateUp() error {
	return a.db.MigrateUp()
}

// InitIdentity generates a fresh signing key pair and stores it at the
// configured paths, the seed sealed to the passphrase.
func (a *App) InitIdentity(passphrase string) error {
	key, err := identity.Generate()
	if err != nil {
		return fmt.Errorf("generating identity: %w", err)
	}
	if err := key.Save(a.cfg.Identity.PublicKeyPath, a.cfg.Identity.PrivateKeyPath, passphrase); err != nil {
		return fmt.Errorf("saving identity: %w", err)
	}
	return nil
}

// Backup snapshots the database, encrypts the snapshot with the passphrase
// and uploads it to the first configured vault. The snapshot version is the
// store's max row id, so a vault holding a newer snapshot rejects the push.
func (a *App) Backup(ctx context.Context, passphrase string) error {
	if len(a.cfg.Backup.Vaults) == 0 {
		return fmt.Errorf("no vaults configured")
	}
	v, err := vault.NewVaultFromConfig(ctx, a.cfg.Backup.Vaults[0])
	if err != nil {
		return fmt.Errorf("creating vault: %w", err)
	}
	enc, err := encryption.NewEncryptorFromConfig(a.cfg.Backup.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}

	version, err := a.db.GetMaxRowID(ctx)
	if err != nil {
		return fmt.Errorf("reading local version: %w", err)
	}
	remoteVersion, err := v.GetSnapshotVersion(a.cfg.NodeID)
	if err != nil {
		return fmt.Errorf("checking remote snapshot version: %w", err)
	}
	if remoteVersion > version {
		return fmt.Errorf("local database is behind remote (local=%d, remote=%d): restore from vault or re-initialize", version, remoteVersion)
	}

	// Snapshot the DB to a temp file.
	tmpFile, err := os.CreateTemp("", "tms-db-snapshot-*.db")
	if err != nil {
		return fmt.Errorf("creating temp file for snapshot: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	if err := a.db.BackupTo(tmpPath); err != nil {
		return fmt.Errorf("snapshotting database: %w", err)
	}

	// Encrypt the snapshot to a second temp file.
	encPath := tmpPath + ".age"
	defer os.Remove(encPath)
	if err := encryptFile(enc, passphrase, tmpPath, encPath); err != nil {
		return err
	}

	f, err := os.Open(encPath)
	if err != nil {
		return fmt.Errorf("opening encrypted snapshot: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat encrypted snapshot: %w", err)
	}

	if err := v.PutSnapshot(a.cfg.NodeID, f, info.Size(), version); err != nil {
		return fmt.Errorf("uploading snapshot to vault: %w", err)
	}
	return nil
}

// Restore pulls this node's snapshot from the first configured vault,
// decrypts it with the passphrase and writes it to destPath.
// The restored file replaces the live database only after the caller
// stops the app.
func (a *App) Restore(ctx context.Context, passphrase, destPath string) error {
	if len(a.cfg.Backup.Vaults) == 0 {
		return fmt.Errorf("no vaults configured")
	}
	v, err := vault.NewVaultFromConfig(ctx, a.cfg.Backup.Vaults[0])
	if err != nil {
		return fmt.Errorf("creating vault: %w", err)
	}
	enc, err := encryption.NewEncryptorFromConfig(a.cfg.Backup.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}

	tmpFile, err := os.CreateTemp("", "tms-db-restore-*.age")
	if err != nil {
		return fmt.Errorf("creating temp file for restore: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if err := v.GetSnapshot(a.cfg.NodeID, tmpFile); err != nil {
		tmpFile.Close()
		return fmt.Errorf("downloading snapshot: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing downloaded snapshot: %w", err)
	}

	in, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("opening downloaded snapshot: %w", err)
	}
	defer in.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating restore target: %w", err)
	}
	defer out.Close()

	if err := enc.Decrypt(passphrase, in, out); err != nil {
		return fmt.Errorf("decrypting snapshot: %w", err)
	}
	return nil
}

func encryptFile(enc encryption.Encryptor, passphrase, srcPath, destPath string) error {
	in, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer in.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating encrypted snapshot: %w", err)
	}
	defer out.Close()

	if err := enc.Encrypt(passphrase, in, out); err != nil {
		return fmt.Errorf("encrypting snapshot: %w", err)
	}
	return out.Close()
}

// Close shuts the service down and closes all resources.
func (a *App) Close() error {
	err := a.service.Close()
	if a.logFile != nil {
		a.logFile.Close()
	}
	return err
}
