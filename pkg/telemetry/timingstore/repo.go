package timingstore

import (
	"github.com/tauraamui/xerror"
	"gorm.io/gorm"
)

type GormWrapper interface {
	Error() error
	CreateInBatches(interface{}, int) GormWrapper
	Where(interface{}, ...interface{}) GormWrapper
	Order(interface{}) GormWrapper
	Find(interface{}, ...interface{}) GormWrapper
	Close() error
}

type wrapper struct {
	db *gorm.DB
}

func Wrap(db *gorm.DB) GormWrapper {
	return &wrapper{db: db}
}

func (w *wrapper) Error() error {
	return w.db.Error
}

func (w *wrapper) CreateInBatches(value interface{}, batchSize int) GormWrapper {
	return &wrapper{db: w.db.CreateInBatches(value, batchSize)}
}

func (w *wrapper) Where(query interface{}, args ...interface{}) GormWrapper {
	return &wrapper{db: w.db.Where(query, args...)}
}

func (w *wrapper) Order(value interface{}) GormWrapper {
	return &wrapper{db: w.db.Order(value)}
}

func (w *wrapper) Find(dest interface{}, conds ...interface{}) GormWrapper {
	return &wrapper{db: w.db.Find(dest, conds...)}
}

func (w *wrapper) Close() error {
	sqlDB, err := w.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type FrameTimingRepository struct {
	DB GormWrapper
}

func (r *FrameTimingRepository) CreateAll(timings []FrameTiming) error {
	if len(timings) == 0 {
		return nil
	}
	return r.DB.CreateInBatches(&timings, len(timings)).Error()
}

func (r *FrameTimingRepository) FindBySession(sessionUUID string) ([]FrameTiming, error) {
	timings := []FrameTiming{}
	if err := r.DB.Where("session_uuid = ?", sessionUUID).Order("seq").Find(&timings).Error(); err != nil {
		return nil, xerror.Errorf("timings of session %s not found: %w", sessionUUID, err)
	}
	return timings, nil
}
