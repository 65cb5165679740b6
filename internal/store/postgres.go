package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/credrisk/diligence-engine/internal/models"
)

// PostgresStore handles relational state: company requests, jobs, iterations,
// reports, the report outbox and the audit log.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the schema if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS company_requests (
			request_id   VARCHAR(64) PRIMARY KEY,
			name         VARCHAR(255) NOT NULL,
			cin          VARCHAR(64),
			industry     VARCHAR(128),
			jurisdiction VARCHAR(128),
			directors    JSONB,
			created_at   TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS research_jobs (
			id                 UUID PRIMARY KEY,
			request_id         VARCHAR(64) NOT NULL REFERENCES company_requests(request_id),
			job_type           VARCHAR(32) NOT NULL,
			status             VARCHAR(16) NOT NULL DEFAULT 'pending',
			progress           INT NOT NULL DEFAULT 0,
			max_iterations     INT NOT NULL DEFAULT 3,
			current_iteration  INT NOT NULL DEFAULT 0,
			strategy           VARCHAR(16) NOT NULL DEFAULT 'multi',
			risk_score         INT,
			recommendation     VARCHAR(32),
			error              TEXT,
			created_at         TIMESTAMPTZ DEFAULT NOW(),
			updated_at         TIMESTAMPTZ DEFAULT NOW(),
			started_at         TIMESTAMPTZ,
			completed_at       TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS research_iterations (
			id           UUID PRIMARY KEY,
			job_id       UUID NOT NULL REFERENCES research_jobs(id),
			number       INT NOT NULL,
			focus        TEXT,
			status       VARCHAR(16) NOT NULL,
			confidence   DOUBLE PRECISION DEFAULT 0,
			data_quality DOUBLE PRECISION DEFAULT 0,
			tokens_used  INT DEFAULT 0,
			created_at   TIMESTAMPTZ DEFAULT NOW(),
			completed_at TIMESTAMPTZ,
			UNIQUE (job_id, number)
		);
		CREATE TABLE IF NOT EXISTS reports (
			id                UUID PRIMARY KEY,
			request_id        VARCHAR(64) NOT NULL REFERENCES company_requests(request_id),
			title             TEXT NOT NULL,
			executive_summary TEXT,
			sections          JSONB NOT NULL,
			risk_level        VARCHAR(16) NOT NULL,
			risk_score        INT NOT NULL,
			recommendation    VARCHAR(32) NOT NULL,
			object_key        TEXT,
			generated_at      TIMESTAMPTZ DEFAULT NOW(),
			expires_at        TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS report_tasks (
			id         UUID PRIMARY KEY,
			request_id VARCHAR(64) NOT NULL UNIQUE,
			status     VARCHAR(16) NOT NULL DEFAULT 'queued',
			attempts   INT NOT NULL DEFAULT 0,
			queued_at  TIMESTAMPTZ DEFAULT NOW(),
			finished_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS audit_log (
			id         BIGSERIAL PRIMARY KEY,
			action     VARCHAR(64) NOT NULL,
			details    JSONB,
			user_id    VARCHAR(64),
			ip_address VARCHAR(64),
			user_agent TEXT,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

// ── Company requests ──────────────────────────────────────────

func (s *PostgresStore) CreateCompany(ctx context.Context, c *models.CompanyProfile) error {
	directors, _ := json.Marshal(c.Directors)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO company_requests (request_id, name, cin, industry, jurisdiction, directors)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (request_id) DO UPDATE
		 SET name = EXCLUDED.name, cin = EXCLUDED.cin, industry = EXCLUDED.industry,
		     jurisdiction = EXCLUDED.jurisdiction, directors = EXCLUDED.directors`,
		c.RequestID, c.Name, c.CIN, c.Industry, c.Jurisdiction, directors,
	)
	if err != nil {
		return fmt.Errorf("create company: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCompany(ctx context.Context, requestID string) (*models.CompanyProfile, error) {
	var c models.CompanyProfile
	var directors []byte
	err := s.pool.QueryRow(ctx,
		`SELECT request_id, name, COALESCE(cin,''), COALESCE(industry,''),
		        COALESCE(jurisdiction,''), COALESCE(directors,'[]'), created_at
		 FROM company_requests WHERE request_id = $1`, requestID,
	).Scan(&c.RequestID, &c.Name, &c.CIN, &c.Industry, &c.Jurisdiction, &directors, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal(directors, &c.Directors)
	return &c, nil
}

// ── Jobs ──────────────────────────────────────────────────────

func (s *PostgresStore) CreateJob(ctx context.Context, j *models.ResearchJob) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO research_jobs (id, request_id, job_type, status, max_iterations, strategy)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		j.ID, j.RequestID, j.JobType, j.Status, j.MaxIterations, j.Strategy,
	)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*models.ResearchJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, request_id, job_type, status, progress, max_iterations, current_iteration,
		        strategy, risk_score, COALESCE(recommendation,''), COALESCE(error,''),
		        created_at, updated_at, started_at, completed_at
		 FROM research_jobs WHERE id = $1`, id)
	return scanJob(row)
}

func (s *PostgresStore) ListJobsByRequest(ctx context.Context, requestID string) ([]models.ResearchJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, request_id, job_type, status, progress, max_iterations, current_iteration,
		        strategy, risk_score, COALESCE(recommendation,''), COALESCE(error,''),
		        created_at, updated_at, started_at, completed_at
		 FROM research_jobs WHERE request_id = $1 ORDER BY created_at`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.ResearchJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.ResearchJob, error) {
	var j models.ResearchJob
	err := row.Scan(&j.ID, &j.RequestID, &j.JobType, &j.Status, &j.Progress, &j.MaxIterations,
		&j.CurrentIteration, &j.Strategy, &j.RiskScore, &j.Recommendation, &j.Error,
		&j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// MarkJobRunning transitions a pending job to running. The WHERE clause keeps
// the transition one-way.
func (s *PostgresStore) MarkJobRunning(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE research_jobs
		 SET status = 'running', progress = 0, started_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s is not pending", id)
	}
	return nil
}

// UpdateJobProgress bumps progress and current iteration. Progress never goes
// backwards: the GREATEST guard makes concurrent stale writes harmless.
func (s *PostgresStore) UpdateJobProgress(ctx context.Context, id string, progress, currentIteration int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE research_jobs
		 SET progress = GREATEST(progress, $2), current_iteration = $3, updated_at = NOW()
		 WHERE id = $1 AND status = 'running'`,
		id, progress, currentIteration)
	return err
}

// CompleteJob marks the job completed and, when every core job type for the
// request is now completed, enqueues a report task in the same transaction.
// Returns true when a task was enqueued.
func (s *PostgresStore) CompleteJob(ctx context.Context, id, taskID string, riskScore int, recommendation string) (bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var requestID string
	err = tx.QueryRow(ctx,
		`UPDATE research_jobs
		 SET status = 'completed', progress = 100, risk_score = $2, recommendation = $3,
		     completed_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status = 'running'
		 RETURNING request_id`,
		id, riskScore, recommendation,
	).Scan(&requestID)
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}

	var completedTypes int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(DISTINCT job_type) FROM research_jobs
		 WHERE request_id = $1 AND status = 'completed'
		   AND job_type IN ('directors_research','legal_research','negative_news','regulatory_research')`,
		requestID,
	).Scan(&completedTypes)
	if err != nil {
		return false, err
	}

	enqueued := false
	if completedTypes == len(models.CoreJobTypes()) {
		tag, qerr := tx.Exec(ctx,
			`INSERT INTO report_tasks (id, request_id) VALUES ($1, $2)
			 ON CONFLICT (request_id) DO NOTHING`,
			taskID, requestID)
		if qerr != nil {
			err = qerr
			return false, err
		}
		enqueued = tag.RowsAffected() > 0
	}

	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	return enqueued, nil
}

// FailJob marks the job failed with a reason. Idempotent for already-terminal
// jobs so a late failure write can never resurrect a completed job.
func (s *PostgresStore) FailJob(ctx context.Context, id, reason string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE research_jobs
		 SET status = 'failed', error = $2, completed_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status IN ('pending','running')`,
		id, reason)
	return err
}

// ── Iterations ────────────────────────────────────────────────

// SaveIteration persists an iteration row. On the first failure it retries
// once with a reduced field set, in case a schema mismatch rejected one of
// the optional columns. The caller treats an error here as unrecoverable.
func (s *PostgresStore) SaveIteration(ctx context.Context, it *models.ResearchIteration) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO research_iterations
		   (id, job_id, number, focus, status, confidence, data_quality, tokens_used, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (job_id, number) DO UPDATE
		 SET status = EXCLUDED.status, confidence = EXCLUDED.confidence,
		     data_quality = EXCLUDED.data_quality, tokens_used = EXCLUDED.tokens_used,
		     completed_at = EXCLUDED.completed_at`,
		it.ID, it.JobID, it.Number, it.Focus, it.Status,
		it.Confidence, it.DataQuality, it.TokensUsed, it.CompletedAt)
	if err == nil {
		return nil
	}

	_, rerr := s.pool.Exec(ctx,
		`INSERT INTO research_iterations (id, job_id, number, status)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (job_id, number) DO UPDATE SET status = EXCLUDED.status`,
		it.ID, it.JobID, it.Number, it.Status)
	if rerr != nil {
		return fmt.Errorf("save iteration: %w (reduced retry: %v)", err, rerr)
	}
	return nil
}

func (s *PostgresStore) ListIterations(ctx context.Context, jobID string) ([]models.ResearchIteration, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, number, COALESCE(focus,''), status, confidence, data_quality,
		        tokens_used, created_at, completed_at
		 FROM research_iterations WHERE job_id = $1 ORDER BY number`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var its []models.ResearchIteration
	for rows.Next() {
		var it models.ResearchIteration
		if err := rows.Scan(&it.ID, &it.JobID, &it.Number, &it.Focus, &it.Status,
			&it.Confidence, &it.DataQuality, &it.TokensUsed, &it.CreatedAt, &it.CompletedAt); err != nil {
			return nil, err
		}
		its = append(its, it)
	}
	return its, rows.Err()
}

// ── Reports ───────────────────────────────────────────────────

func (s *PostgresStore) ReportExists(ctx context.Context, requestID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM reports WHERE request_id = $1)`, requestID,
	).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) InsertReport(ctx context.Context, r *models.Report) error {
	sections, err := json.Marshal(r.Sections)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO reports
		   (id, request_id, title, executive_summary, sections, risk_level, risk_score,
		    recommendation, object_key, generated_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.RequestID, r.Title, r.ExecutiveSummary, sections, r.RiskLevel,
		r.RiskScore, r.Recommendation, r.ObjectKey, r.GeneratedAt, r.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLatestReport(ctx context.Context, requestID string) (*models.Report, error) {
	var r models.Report
	var sections []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, request_id, title, COALESCE(executive_summary,''), sections, risk_level,
		        risk_score, recommendation, COALESCE(object_key,''), generated_at, expires_at
		 FROM reports WHERE request_id = $1 ORDER BY generated_at DESC LIMIT 1`, requestID,
	).Scan(&r.ID, &r.RequestID, &r.Title, &r.ExecutiveSummary, &sections, &r.RiskLevel,
		&r.RiskScore, &r.Recommendation, &r.ObjectKey, &r.GeneratedAt, &r.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sections, &r.Sections); err != nil {
		return nil, err
	}
	return &r, nil
}

// ── Report outbox ─────────────────────────────────────────────

// ClaimNextReportTask locks the next queued task with SKIP LOCKED and marks
// it running, so concurrent workers never double-claim.
func (s *PostgresStore) ClaimNextReportTask(ctx context.Context) (task models.ReportTask, found bool, err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return task, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = tx.QueryRow(ctx,
		`SELECT id, request_id, attempts FROM report_tasks
		 WHERE status = 'queued'
		 ORDER BY queued_at
		 FOR UPDATE SKIP LOCKED
		 LIMIT 1`).Scan(&task.ID, &task.RequestID, &task.Attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		err = nil
		return task, false, nil
	}
	if err != nil {
		return task, false, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE report_tasks SET status = 'running', attempts = attempts + 1 WHERE id = $1`,
		task.ID)
	if err != nil {
		return task, false, err
	}
	task.Status = "running"
	return task, true, nil
}

func (s *PostgresStore) FinishReportTask(ctx context.Context, id string, ok bool) error {
	status := "done"
	if !ok {
		status = "failed"
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE report_tasks SET status = $2, finished_at = NOW() WHERE id = $1`, id, status)
	return err
}

// RequeueReportTask puts a task back for another attempt, parking it as
// failed once attempts are exhausted so nothing spins forever.
func (s *PostgresStore) RequeueReportTask(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE report_tasks
		 SET status = CASE WHEN attempts < 5 THEN 'queued' ELSE 'failed' END,
		     finished_at = CASE WHEN attempts < 5 THEN NULL ELSE NOW() END
		 WHERE id = $1`, id)
	return err
}

// ── Audit log ─────────────────────────────────────────────────

func (s *PostgresStore) InsertAudit(ctx context.Context, e *models.AuditEntry) error {
	details, _ := json.Marshal(e.Details)
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (action, details, user_id, ip_address, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.Action, details, e.UserID, e.IPAddress, e.UserAgent, ts)
	return err
}
