package engine

// seeds.go - CSV seed data loading

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SeedsDir returns the configured seeds directory.
func (e *Engine) SeedsDir() string {
	return e.seedsDir
}

// SeedFiles lists the CSV files in the seeds directory, sorted by name.
// A missing directory has no seeds.
func SeedFiles(seedsDir string) ([]string, error) {
	if seedsDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(seedsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read seeds directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		files = append(files, entry.Name())
	}
	return files, nil
}

// LoadSeeds loads all CSV files from the seeds directory into the database,
// one table per file named after it. It returns the loaded table names.
func (e *Engine) LoadSeeds(ctx context.Context) ([]string, error) {
	files, err := SeedFiles(e.seedsDir)
	if err != nil || len(files) == 0 {
		return nil, err
	}

	if e.ReadOnly() {
		return nil, fmt.Errorf("failed to load seeds: %w", ErrReadOnly)
	}

	e.logger.Debug("loading seeds", "seeds_dir", e.seedsDir)

	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}

	tables := make([]string, 0, len(files))
	for _, file := range files {
		tableName := strings.TrimSuffix(file, ".csv")
		csvPath := filepath.Join(e.seedsDir, file)

		e.logger.Debug("loading seed file", "table", tableName, "path", csvPath)

		if err := e.db.LoadCSV(ctx, tableName, csvPath); err != nil {
			return tables, fmt.Errorf("failed to load seed %s: %w", file, err)
		}
		tables = append(tables, tableName)
	}

	return tables, nil
}
