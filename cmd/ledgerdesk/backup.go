package main

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/kpapadakis/ledgerdesk/internal/config"
)

func runBackup(args []string) error {
	var outputPath string
	var dataDir string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-f":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -f")
			}
			i++
			outputPath = args[i]
		case "-data":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -data")
			}
			i++
			dataDir = args[i]
		}
	}

	if outputPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: ledgerdesk backup -f <output.tar.zst> [-data <dir>]\n")
		return fmt.Errorf("missing -f flag")
	}
	if dataDir == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		dataDir = filepath.Dir(cfg.Store.Path)
	}

	count, err := archiveDir(dataDir, outputPath)
	if err != nil {
		return err
	}

	info, _ := os.Stat(outputPath)
	size := int64(0)
	if info != nil {
		size = info.Size()
	}

	fmt.Printf("Backup complete: %d files, %s\n", count, formatSize(size))
	return nil
}

// archiveDir writes the directory tree into a zstd-compressed tar with
// paths relative to the directory root. Returns the file count.
func archiveDir(dir, outputPath string) (int, error) {
	f, err := os.Create(outputPath)
	if err != nil {
		return 0, fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return 0, fmt.Errorf("create zstd writer: %w", err)
	}
	defer zw.Close()

	tw := tar.NewWriter(zw)
	defer tw.Close()

	count := 0
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		// Skip live WAL artifacts: they are only meaningful alongside a
		// running database.
		if strings.HasSuffix(path, "-wal") || strings.HasSuffix(path, "-shm") {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if err := addFile(tw, path, filepath.ToSlash(rel)); err != nil {
			return fmt.Errorf("archive %s: %w", rel, err)
		}
		count++
		return nil
	})
	if err != nil {
		return count, err
	}

	// Close everything explicitly to catch write errors
	if err := tw.Close(); err != nil {
		return count, fmt.Errorf("close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return count, fmt.Errorf("close zstd: %w", err)
	}
	if err := f.Close(); err != nil {
		return count, fmt.Errorf("close file: %w", err)
	}
	return count, nil
}

func addFile(tw *tar.Writer, path, rel string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = rel
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(tw, src)
	return err
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d bytes", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
