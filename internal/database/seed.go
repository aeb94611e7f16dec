package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// seedFiles lists *.sql in dir in lexical order.
func seedFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// RunSeeds выполняет все *.sql из database/seeds в одной транзакции и
// возвращает число применённых файлов. Сиды должны быть идемпотентными.
func RunSeeds(db *gorm.DB, log *zap.Logger) (int, error) {
	dir, ok := locateDir("seeds")
	if !ok {
		return 0, errors.New("seeds dir not found (tried database/seeds)")
	}
	files, err := seedFiles(dir)
	if err != nil {
		return 0, err
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		for _, f := range files {
			body, err := os.ReadFile(filepath.Join(dir, f))
			if err != nil {
				return fmt.Errorf("seed %s: %w", f, err)
			}
			if err := tx.Exec(string(body)).Error; err != nil {
				return fmt.Errorf("seed %s: %w", f, err)
			}
			log.Info("seed applied", zap.String("file", f))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(files), nil
}
