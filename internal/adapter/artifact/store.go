package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/custos-io/custos/internal/domain"
)

const timestampLayout = "20060102_150405"

// Store is the filesystem registry of backup artifacts. Layout:
//
//	{root}/{database}/{database}_{yyyyMMdd_HHmmss}[_n].sql[.gz]
//
// File existence is the only record; there is no index to drift from disk.
type Store struct {
	root string
}

func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact root: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) databaseDir(database string) string {
	return filepath.Join(s.root, database)
}

// ReservePath claims a path for a new artifact that no prior attempt owns.
// The file is created empty here, so two overlapping runs can never resolve
// to the same path. Same-second collisions get a zero-padded numeric suffix
// so names stay unique and keep sorting by creation time lexically. Both
// compressed and plain variants of a name count as taken.
func (s *Store) ReservePath(database string, at time.Time, compress bool) (string, error) {
	dir := s.databaseDir(database)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}

	base := fmt.Sprintf("%s_%s", database, at.Format(timestampLayout))
	ext := ".sql"
	if compress {
		ext = ".sql.gz"
	}

	name := base
	for n := 1; ; n++ {
		if !s.nameTaken(dir, name) {
			path := filepath.Join(dir, name+ext)
			f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
			if err == nil {
				_ = f.Close()
				return path, nil
			}
			if !os.IsExist(err) {
				return "", fmt.Errorf("failed to reserve artifact path: %w", err)
			}
		}
		name = fmt.Sprintf("%s_%02d", base, n)
	}
}

func (s *Store) nameTaken(dir, name string) bool {
	for _, ext := range []string{".sql", ".sql.gz"} {
		if _, err := os.Stat(filepath.Join(dir, name+ext)); err == nil {
			return true
		}
	}
	return false
}

// List derives the current records for a database, newest first. Ties on
// creation time are broken by file name in descending lexical order, so a
// same-second disambiguated name ranks above its bare sibling.
func (s *Store) List(database string) ([]domain.ArtifactRecord, error) {
	entries, err := os.ReadDir(s.databaseDir(database))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read artifact directory: %w", err)
	}

	var records []domain.ArtifactRecord
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		createdAt, ok := parseTimestamp(database, entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		records = append(records, domain.ArtifactRecord{
			Database:  database,
			FilePath:  filepath.Join(s.databaseDir(database), entry.Name()),
			CreatedAt: createdAt,
			SizeBytes: info.Size(),
		})
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return filepath.Base(records[i].FilePath) > filepath.Base(records[j].FilePath)
	})

	return records, nil
}

func (s *Store) Remove(record domain.ArtifactRecord) error {
	if err := os.Remove(record.FilePath); err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

// parseTimestamp extracts the creation time embedded in an artifact name.
// Files not matching the naming scheme are not artifacts and are skipped.
func parseTimestamp(database, filename string) (time.Time, bool) {
	name := strings.TrimSuffix(filename, ".gz")
	if !strings.HasSuffix(name, ".sql") {
		return time.Time{}, false
	}
	name = strings.TrimSuffix(name, ".sql")

	prefix := database + "_"
	if !strings.HasPrefix(name, prefix) {
		return time.Time{}, false
	}
	stamp := strings.TrimPrefix(name, prefix)
	if len(stamp) < len(timestampLayout) {
		return time.Time{}, false
	}

	ts, err := time.ParseInLocation(timestampLayout, stamp[:len(timestampLayout)], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
