package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JarudeC/privacylens/internal/domain/entity"
	"github.com/JarudeC/privacylens/internal/domain/errs"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.VideoJob) error {
	catalog, err := json.Marshal(job.Catalog)
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}

	query := `
		INSERT INTO video_jobs (
			id, phase, source_key, processed_key, source_size,
			duration_ms, width, height, sample_interval_ms,
			total_frames_sampled, total_frames_analyzed, frames_failed,
			catalog, error_message, created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`

	_, err = r.pool.Exec(ctx, query,
		job.ID, string(job.Phase), job.SourceKey, job.ProcessedKey, job.SourceSize,
		job.DurationMs, job.Width, job.Height, job.SampleIntervalMs,
		job.TotalFramesSampled, job.TotalFramesAnalyzed, job.FramesFailed,
		catalog, job.ErrorMessage, job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.VideoJob) error {
	catalog, err := json.Marshal(job.Catalog)
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}

	query := `
		UPDATE video_jobs SET
			phase=$2, processed_key=$3, duration_ms=$4, width=$5, height=$6,
			sample_interval_ms=$7, total_frames_sampled=$8,
			total_frames_analyzed=$9, frames_failed=$10, catalog=$11,
			error_message=$12, updated_at=$13, completed_at=$14
		WHERE id=$1`

	_, err = r.pool.Exec(ctx, query,
		job.ID, string(job.Phase), job.ProcessedKey, job.DurationMs, job.Width, job.Height,
		job.SampleIntervalMs, job.TotalFramesSampled,
		job.TotalFramesAnalyzed, job.FramesFailed, catalog,
		job.ErrorMessage, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.VideoJob, error) {
	query := `
		SELECT id, phase, source_key, processed_key, source_size,
			duration_ms, width, height, sample_interval_ms,
			total_frames_sampled, total_frames_analyzed, frames_failed,
			catalog, error_message, created_at, updated_at, completed_at
		FROM video_jobs WHERE id=$1`

	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.New(errs.CodeJobNotFound, "video %s not found", id)
		}
		return nil, fmt.Errorf("find job by id: %w", err)
	}
	return job, nil
}

func (r *JobRepository) SaveRedaction(ctx context.Context, videoID uuid.UUID, requestHash, processedKey string) error {
	query := `
		INSERT INTO redactions (video_id, request_hash, processed_key, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (video_id, request_hash) DO NOTHING`

	if _, err := r.pool.Exec(ctx, query, videoID, requestHash, processedKey); err != nil {
		return fmt.Errorf("insert redaction: %w", err)
	}
	return nil
}

func (r *JobRepository) FindRedaction(ctx context.Context, videoID uuid.UUID, requestHash string) (string, bool, error) {
	var key string
	err := r.pool.QueryRow(ctx,
		`SELECT processed_key FROM redactions WHERE video_id=$1 AND request_hash=$2`,
		videoID, requestHash,
	).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find redaction: %w", err)
	}
	return key, true, nil
}

func (r *JobRepository) ListRedactionKeys(ctx context.Context, videoID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT processed_key FROM redactions WHERE video_id=$1`, videoID)
	if err != nil {
		return nil, fmt.Errorf("list redaction keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan redaction key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (r *JobRepository) ListExpired(ctx context.Context, cutoff time.Time) ([]*entity.VideoJob, error) {
	query := `
		SELECT id, phase, source_key, processed_key, source_size,
			duration_ms, width, height, sample_interval_ms,
			total_frames_sampled, total_frames_analyzed, frames_failed,
			catalog, error_message, created_at, updated_at, completed_at
		FROM video_jobs WHERE created_at < $1`

	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list expired jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*entity.VideoJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *JobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM video_jobs WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

func scanJob(row pgx.Row) (*entity.VideoJob, error) {
	job := &entity.VideoJob{}
	var phase string
	var catalog []byte
	err := row.Scan(
		&job.ID, &phase, &job.SourceKey, &job.ProcessedKey, &job.SourceSize,
		&job.DurationMs, &job.Width, &job.Height, &job.SampleIntervalMs,
		&job.TotalFramesSampled, &job.TotalFramesAnalyzed, &job.FramesFailed,
		&catalog, &job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Phase = entity.JobPhase(phase)
	if len(catalog) > 0 {
		if err := json.Unmarshal(catalog, &job.Catalog); err != nil {
			return nil, fmt.Errorf("unmarshal catalog: %w", err)
		}
	}
	return job, nil
}
