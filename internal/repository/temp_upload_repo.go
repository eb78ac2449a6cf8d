package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/volunteer-hub-web/internal/models"
)

// TempUploadRepository is the ledger of temporary uploads awaiting either
// attachment to an activity or deletion.
type TempUploadRepository interface {
	Track(ctx context.Context, upload *models.TempUpload) error
	Release(ctx context.Context, publicIDs ...string) error
	ListExpired(ctx context.Context, before time.Time, limit int) ([]models.TempUpload, error)
	MarkFailed(ctx context.Context, id uint, reason string) error
	CountBySession(ctx context.Context, sessionID string) (int64, error)
}

type tempUploadRepository struct {
	db *gorm.DB
}

// NewTempUploadRepository constructs the temp upload ledger.
func NewTempUploadRepository(db *gorm.DB) TempUploadRepository {
	return &tempUploadRepository{db: db}
}

func (r *tempUploadRepository) Track(ctx context.Context, upload *models.TempUpload) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "public_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"resource_type", "url", "session_id", "metadata", "updated_at"}),
	}).Create(upload).Error
}

func (r *tempUploadRepository) Release(ctx context.Context, publicIDs ...string) error {
	if len(publicIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("public_id IN ?", publicIDs).Delete(&models.TempUpload{}).Error
}

func (r *tempUploadRepository) ListExpired(ctx context.Context, before time.Time, limit int) ([]models.TempUpload, error) {
	if limit <= 0 {
		limit = 50
	}
	var uploads []models.TempUpload
	err := r.db.WithContext(ctx).
		Where("created_at < ?", before).
		Order("created_at ASC").
		Limit(limit).
		Find(&uploads).Error
	return uploads, err
}

func (r *tempUploadRepository) MarkFailed(ctx context.Context, id uint, reason string) error {
	if len(reason) > 512 {
		reason = reason[:512]
	}
	return r.db.WithContext(ctx).Model(&models.TempUpload{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": reason,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *tempUploadRepository) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.TempUpload{}).Where("session_id = ?", sessionID).Count(&total).Error
	return total, err
}
