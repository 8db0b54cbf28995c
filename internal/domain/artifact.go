package domain

import "time"

// ArtifactRecord is derived from a backup file on disk. File existence is the
// sole source of truth; records are re-derived on every listing.
type ArtifactRecord struct {
	Database  string
	FilePath  string
	CreatedAt time.Time
	SizeBytes int64
}

// RetentionPolicy keeps an artifact when it is younger than KeepDays OR among
// the KeepCount newest. Age and count are protections, not eviction rules.
type RetentionPolicy struct {
	KeepDays  int
	KeepCount int
}
