package main

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"askrelay/internal/config"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// Archive member names.
const (
	backupHistoryName = "history.db"
)

func backupCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the history database and config",
		Long: `Writes a .tar.gz containing a consistent snapshot of the history
database and the config file. The archive is timestamped by default.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := setup(nil)
			if err != nil {
				return err
			}
			defer closeLog()
			cfgPath := config.ExpandPath(resolveConfigPath())

			if outputPath == "" {
				dir := filepath.Join(config.DefaultConfigDir(), "backups")
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("cannot create backup directory: %w", err)
				}
				outputPath = filepath.Join(dir, fmt.Sprintf("askrelay-backup-%s.tar.gz", time.Now().Format("20060102-150405")))
			}

			tmp, err := os.MkdirTemp("", "askrelay-backup-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(tmp)

			store, err := openHistory(cfg)
			if err != nil {
				return err
			}
			snapshot := filepath.Join(tmp, backupHistoryName)
			err = store.Snapshot(cmd.Context(), snapshot)
			store.Close()
			if err != nil {
				return err
			}

			files := []string{snapshot}
			if _, err := os.Stat(cfgPath); err == nil {
				files = append(files, cfgPath)
			}

			if err := createTarGz(outputPath, files); err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			fmt.Printf("Backup created: %s\n", outputPath)
			for _, f := range files {
				var size uint64
				if info, err := os.Stat(f); err == nil {
					size = uint64(info.Size())
				}
				fmt.Printf("  - %s (%s)\n", filepath.Base(f), humanize.Bytes(size))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (default: ~/.askrelay/backups/askrelay-backup-<timestamp>.tar.gz)")
	return cmd
}

func restoreCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore [archive]",
		Short: "Restore the history database and config from a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfgPath := config.ExpandPath(resolveConfigPath())
			dbPath := cfg.History.DBPath

			if !force {
				for _, p := range []string{dbPath, cfgPath} {
					if _, err := os.Stat(p); err == nil {
						fmt.Printf("This will overwrite existing data:\n  history: %s\n  config:  %s\n", dbPath, cfgPath)
						return fmt.Errorf("restore aborted (use --force to proceed)")
					}
				}
			}

			restored, err := extractTarGz(cmd.Context(), args[0], dbPath, cfgPath)
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}
			fmt.Printf("Restored from %s:\n", args[0])
			for _, f := range restored {
				fmt.Printf("  - %s\n", f)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing data")
	return cmd
}

func createTarGz(outputPath string, files []string) error {
	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)
	for _, f := range files {
		if err := addFileToTar(tw, f); err != nil {
			return fmt.Errorf("add %s: %w", f, err)
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return out.Close()
}

func addFileToTar(tw *tar.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(path)
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

// restoreTarget maps an archive member to its destination, or "" to skip it.
func restoreTarget(name, dbPath, cfgPath string) string {
	switch filepath.Base(name) {
	case backupHistoryName:
		return dbPath
	case "config.json", "config.yaml", "config.yml":
		return cfgPath
	default:
		return ""
	}
}

func extractTarGz(ctx context.Context, archivePath, dbPath, cfgPath string) ([]string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("not a valid gzip file: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	var restored []string
	for {
		if err := ctx.Err(); err != nil {
			return restored, err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return restored, err
		}
		target := restoreTarget(hdr.Name, dbPath, cfgPath)
		if target == "" {
			logger.Warn("skipping unknown archive member", "name", hdr.Name)
			continue
		}
		if target == dbPath {
			// Stale WAL files would be replayed over the restored database.
			os.Remove(dbPath + "-wal")
			os.Remove(dbPath + "-shm")
		}
		if err := writeFile(target, tr); err != nil {
			return restored, err
		}
		restored = append(restored, target)
	}
	return restored, nil
}

func writeFile(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("extract %s: %w", path, err)
	}
	return out.Close()
}
