package db

import (
	"context"
	"errors"
	"time"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"gorm.io/gorm"
)

type JobRepository struct {
	db    *gorm.DB
	lease time.Duration
	now   func() time.Time
}

// NewJobRepository builds the job queue. A running job is considered abandoned once it has not been
// updated for lease; lease must exceed the longest collection run.
func NewJobRepository(db *gorm.DB, lease time.Duration) *JobRepository {
	return &JobRepository{db: db, lease: lease, now: time.Now}
}

func (r *JobRepository) Enqueue(ctx context.Context, job *domain.Job) error {
	now := time.Now().UTC()
	if job.RunAfter.IsZero() {
		job.RunAfter = now
	}
	if job.Status == "" {
		job.Status = domain.JobPending
	}
	model := jobModel{
		ID:          job.ID,
		Type:        job.Type,
		Status:      string(job.Status),
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		RunAfter:    job.RunAfter.UTC(),
		LastError:   job.LastError,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	job.CreatedAt = model.CreatedAt
	job.UpdatedAt = model.UpdatedAt
	return nil
}

const claimJobSQL = `
UPDATE jobs
SET status = ?, attempts = attempts + 1, updated_at = ?
WHERE id = (
	SELECT id FROM jobs
	WHERE status = ? AND type = ? AND run_after <= ?
	ORDER BY run_after, created_at
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING *`

// ClaimNext moves the oldest due pending job of jobType to running. It returns nil when nothing is due.
func (r *JobRepository) ClaimNext(ctx context.Context, jobType string) (*domain.Job, error) {
	now := time.Now().UTC()
	var models []jobModel
	err := r.db.WithContext(ctx).
		Raw(claimJobSQL, string(domain.JobRunning), now, string(domain.JobPending), jobType, now).
		Scan(&models).Error
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	job := mapJobToDomain(models[0])
	return &job, nil
}

func (r *JobRepository) Complete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&jobModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": string(domain.JobCompleted), "last_error": ""})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *JobRepository) Fail(ctx context.Context, id string, errMsg string, backoff time.Duration) (bool, error) {
	var exhausted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model jobModel
		if err := tx.Where("id = ?", id).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}

		updates := map[string]any{"last_error": errMsg}
		if model.Attempts >= model.MaxAttempts {
			exhausted = true
			updates["status"] = string(domain.JobFailed)
		} else {
			updates["status"] = string(domain.JobPending)
			updates["run_after"] = time.Now().UTC().Add(backoff)
		}
		return tx.Model(&jobModel{}).Where("id = ?", id).Updates(updates).Error
	})
	return exhausted, err
}

// Recover returns running jobs whose lease expired to pending. Jobs claimed by a live worker on
// another instance keep running.
func (r *JobRepository) Recover(ctx context.Context) (int, error) {
	cutoff := r.now().UTC().Add(-r.lease)
	result := recoverQuery(r.db.WithContext(ctx), cutoff)
	return int(result.RowsAffected), result.Error
}

func recoverQuery(tx *gorm.DB, cutoff time.Time) *gorm.DB {
	return tx.Model(&jobModel{}).
		Where("status = ? AND updated_at < ?", string(domain.JobRunning), cutoff).
		Update("status", string(domain.JobPending))
}

func mapJobToDomain(model jobModel) domain.Job {
	return domain.Job{
		ID:          model.ID,
		Type:        model.Type,
		Status:      domain.JobStatus(model.Status),
		Attempts:    model.Attempts,
		MaxAttempts: model.MaxAttempts,
		RunAfter:    model.RunAfter,
		LastError:   model.LastError,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}
