package domain

import "time"

// RunScope selects one database or all configured databases.
type RunScope struct {
	All      bool
	Database string
}

func ScopeAll() RunScope {
	return RunScope{All: true}
}

func ScopeDatabase(name string) RunScope {
	return RunScope{Database: name}
}

// RunSummary aggregates one orchestrated pass. A summary with failures is
// still a completed run; failure is data, not an error, at this boundary.
type RunSummary struct {
	Results   []BackupResult
	Duration  time.Duration
	Succeeded int
	Failed    int
}
