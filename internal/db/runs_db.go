package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/olavph/builds/internal/models"
)

type RunsDb interface {
	CreateRun(timestamp string, distroName string, distroVersion string, architecture string) (*models.BuildRunModel, error)
	SaveResult(result *models.BuildResultModel) (*models.BuildResultModel, error)
	FinishRun(runId uuid.UUID) error
	GetRunResults(runId uuid.UUID) ([]models.BuildResultModel, error)
}

type sqlRunsDb struct {
	db *sqlx.DB
}

func newSqlRunsDb(db *sqlx.DB) *sqlRunsDb {
	return &sqlRunsDb{db: db}
}

func (s *sqlRunsDb) CreateRun(timestamp string, distroName string, distroVersion string, architecture string) (*models.BuildRunModel, error) {
	const query = `
	INSERT INTO
		build_run (run_timestamp, distro_name, distro_version, architecture, started_at)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id
	`
	startedAt := time.Now().UTC()
	var id uuid.UUID
	if err := s.db.QueryRowx(query,
		timestamp, distroName, distroVersion, architecture, startedAt).Scan(&id); err != nil {
		return nil, err
	}
	return &models.BuildRunModel{
		Id:            id,
		Timestamp:     timestamp,
		DistroName:    distroName,
		DistroVersion: distroVersion,
		Architecture:  architecture,
		StartedAt:     startedAt,
	}, nil
}

func (s *sqlRunsDb) SaveResult(result *models.BuildResultModel) (*models.BuildResultModel, error) {
	const query = `
	INSERT INTO
		build_result (run_id, package, version, success, rpm_count)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id
	`
	var id uuid.UUID
	if err := s.db.QueryRowx(query,
		result.RunId, result.Package, result.Version, result.Success,
		result.RPMCount).Scan(&id); err != nil {
		return nil, err
	}
	saved := *result
	saved.Id = id
	return &saved, nil
}

func (s *sqlRunsDb) FinishRun(runId uuid.UUID) error {
	const query = `
	UPDATE
		build_run
	SET
		finished_at=$1
	WHERE
		id=$2
	`
	_, err := s.db.Exec(query, time.Now().UTC(), runId)
	return err
}

func (s *sqlRunsDb) GetRunResults(runId uuid.UUID) ([]models.BuildResultModel, error) {
	const query = `
	SELECT
		id, run_id, package, version, success, rpm_count
	FROM
		build_result
	WHERE
		run_id=$1
	ORDER BY package
	`
	var results []models.BuildResultModel
	if err := s.db.Select(&results, query, runId); err != nil {
		return nil, err
	}
	return results, nil
}
