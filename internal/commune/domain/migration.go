package domain

import "time"

// Data migration states. A record stuck in MigrationInProgress from a
// previous run blocks startup until resolved by hand.
const (
	MigrationInProgress = "inProgress"
	MigrationDone       = "done"
)

// DataMigration is the persisted completion marker for one named data
// transformation. Rows are created at startup and never deleted.
type DataMigration struct {
	Name        string
	Status      string
	ProcessedAt time.Time
}
