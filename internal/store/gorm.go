package store

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lautwerk/speech_go_server/internal/model"
)

// ResultJSON stores the per-stage result slots as a JSON column.
type ResultJSON model.Result

func (r ResultJSON) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *ResultJSON) Scan(value interface{}) error {
	if value == nil {
		*r = ResultJSON{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return fmt.Errorf("unsupported result column type %T", value)
	}
}

// JobRecord is the persisted form of model.Job.
type JobRecord struct {
	ID              string     `gorm:"primaryKey;size:36"`
	Status          string     `gorm:"size:32;not null;index"`
	IncludePhonemes bool       `gorm:"not null"`
	AudioRef        string     `gorm:"size:500;not null"`
	Result          ResultJSON `gorm:"type:json"`
	ReportURL       string     `gorm:"size:500"`
	ErrorMessage    string     `gorm:"type:text"`
	CreatedAt       time.Time  `gorm:"index"`
	UpdatedAt       time.Time
}

func (JobRecord) TableName() string {
	return "speech_jobs"
}

func (r *JobRecord) toJob() *model.Job {
	return &model.Job{
		ID:              r.ID,
		Status:          model.Status(r.Status),
		IncludePhonemes: r.IncludePhonemes,
		AudioRef:        r.AudioRef,
		Result:          model.Result(r.Result),
		ReportURL:       r.ReportURL,
		Error:           r.ErrorMessage,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func recordFromJob(j *model.Job) *JobRecord {
	return &JobRecord{
		ID:              j.ID,
		Status:          string(j.Status),
		IncludePhonemes: j.IncludePhonemes,
		AudioRef:        j.AudioRef,
		Result:          ResultJSON(j.Result),
		ReportURL:       j.ReportURL,
		ErrorMessage:    j.Error,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}
}

// GormStore persists jobs through gorm (MySQL in production, SQLite in
// tests). Per-id update serialization uses the same keyed mutex as the
// memory store; the process owns its job ids, so no cross-process
// locking is needed.
type GormStore struct {
	db    *gorm.DB
	locks *lockTable
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&JobRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate job table: %w", err)
	}
	return &GormStore{db: db, locks: newLockTable()}, nil
}

func (s *GormStore) Create(ctx context.Context, audioRef string) (*model.Job, error) {
	now := time.Now().UTC()
	job := &model.Job{
		ID:        uuid.NewString(),
		Status:    model.StatusUploaded,
		AudioRef:  audioRef,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.db.WithContext(ctx).Create(recordFromJob(job)).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (s *GormStore) Get(ctx context.Context, id string) (*model.Job, error) {
	var rec JobRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec.toJob(), nil
}

func (s *GormStore) Update(ctx context.Context, id string, fn func(*model.Job) error) (*model.Job, error) {
	lock := s.locks.of(id)
	lock.Lock()
	defer lock.Unlock()

	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := fn(job); err != nil {
		return nil, err
	}
	job.UpdatedAt = time.Now().UTC()

	if err := s.db.WithContext(ctx).Save(recordFromJob(job)).Error; err != nil {
		return nil, err
	}
	return job.Clone(), nil
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	lock := s.locks.of(id)
	lock.Lock()
	defer lock.Unlock()

	res := s.db.WithContext(ctx).Delete(&JobRecord{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	s.locks.drop(id)
	return nil
}

func (s *GormStore) List(ctx context.Context) ([]*model.Job, error) {
	var recs []JobRecord
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	jobs := make([]*model.Job, 0, len(recs))
	for i := range recs {
		jobs = append(jobs, recs[i].toJob())
	}
	return jobs, nil
}
