package timingstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Model interface{}

var models = []Model{}

func autoMigrate(db *gorm.DB) error {
	for _, m := range models {
		if err := db.AutoMigrate(m); err != nil {
			return err
		}
	}
	return nil
}

func registerForAutomigration(m Model) {
	models = append(models, m)
}

func init() {
	registerForAutomigration(&FrameTiming{})
}

// FrameTiming is one row per processed frame.
type FrameTiming struct {
	gorm.Model
	UUID           string
	SessionUUID    string `gorm:"index"`
	Seq            uint64
	CapturedAt     time.Time
	DurationMicros int64
	Mode           string
	Published      bool
	Error          string
}

func (f *FrameTiming) BeforeCreate(tx *gorm.DB) error {
	f.UUID = uuid.NewString()
	return nil
}
