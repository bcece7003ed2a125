package models

import (
	"time"

	"github.com/google/uuid"
)

// BuildRunModel is one invocation of the build-packages command.
type BuildRunModel struct {
	Id            uuid.UUID  `db:"id"`
	Timestamp     string     `db:"run_timestamp"`
	DistroName    string     `db:"distro_name"`
	DistroVersion string     `db:"distro_version"`
	Architecture  string     `db:"architecture"`
	StartedAt     time.Time  `db:"started_at"`
	FinishedAt    *time.Time `db:"finished_at"`
}

// BuildResultModel is the outcome of building one package within a run.
type BuildResultModel struct {
	Id       uuid.UUID `db:"id"`
	RunId    uuid.UUID `db:"run_id"`
	Package  string    `db:"package"`
	Version  string    `db:"version"`
	Success  bool      `db:"success"`
	RPMCount int       `db:"rpm_count"`
}
