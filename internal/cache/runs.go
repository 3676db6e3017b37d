package cache

import (
	"database/sql"
	"time"
)

// Outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// RunRecord is one row of run history. It never holds credentials,
// cookies or tokens.
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Contract   string
	Target     string
	Outcome    string

	FailedStep string
	ErrorKind  string
	ErrorText  string
	StatusCode int

	CurrentStreak int64
	MaxStreak     int64
}

// PutRun stores a run record.
func (d *DB) PutRun(r RunRecord) error {
	_, err := d.db.Exec(`INSERT OR REPLACE INTO runs (id, started_at, finished_at, contract, target, outcome,
		failed_step, error_kind, error_text, status_code, current_streak, max_streak)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UnixMilli(), r.FinishedAt.UnixMilli(), r.Contract, r.Target, r.Outcome,
		nullStr(r.FailedStep), nullStr(r.ErrorKind), nullStr(r.ErrorText), r.StatusCode,
		r.CurrentStreak, r.MaxStreak)
	return err
}

// RecentRuns returns up to limit runs, newest first.
func (d *DB) RecentRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.Query(`SELECT id, started_at, finished_at, contract, target, outcome,
		failed_step, error_kind, error_text, status_code, current_streak, max_streak
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LastSuccess returns the newest successful run. ok is false when there is
// none.
func (d *DB) LastSuccess() (RunRecord, bool, error) {
	row := d.db.QueryRow(`SELECT id, started_at, finished_at, contract, target, outcome,
		failed_step, error_kind, error_text, status_code, current_streak, max_streak
		FROM runs WHERE outcome = ? ORDER BY started_at DESC LIMIT 1`, OutcomeOK)

	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return RunRecord{}, false, nil
	}
	if err != nil {
		return RunRecord{}, false, err
	}
	return r, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (RunRecord, error) {
	var r RunRecord
	var started, finished int64
	var failedStep, errorKind, errorText sql.NullString

	err := s.Scan(&r.ID, &started, &finished, &r.Contract, &r.Target, &r.Outcome,
		&failedStep, &errorKind, &errorText, &r.StatusCode, &r.CurrentStreak, &r.MaxStreak)
	if err != nil {
		return RunRecord{}, err
	}
	r.StartedAt = time.UnixMilli(started)
	r.FinishedAt = time.UnixMilli(finished)
	r.FailedStep = failedStep.String
	r.ErrorKind = errorKind.String
	r.ErrorText = errorText.String
	return r, nil
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
