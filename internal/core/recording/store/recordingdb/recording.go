package recordingdb

import (
	"context"

	"github.com/gowvp/edgecam/internal/core/recording"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

var _ recording.RecordingStorer = Recording{}

// Recording Related business namespaces
type Recording DB

// NewRecording instance object
func NewRecording(db *gorm.DB) Recording {
	return Recording{db: db}
}

// Find implements recording.RecordingStorer.
func (d Recording) Find(ctx context.Context, out *[]*recording.Recording, pager orm.Pager, opts ...orm.QueryOption) (int64, error) {
	base := scope(ctx, d.db, new(recording.Recording), opts...).Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil || total == 0 {
		return total, err
	}
	query := base
	if pager != nil {
		query = query.Limit(pager.Limit()).Offset(pager.Offset())
	}
	return total, query.Find(out).Error
}

// Get implements recording.RecordingStorer.
func (d Recording) Get(ctx context.Context, out *recording.Recording, opts ...orm.QueryOption) error {
	return scope(ctx, d.db, out, opts...).First(out).Error
}

// Add implements recording.RecordingStorer.
func (d Recording) Add(ctx context.Context, in *recording.Recording) error {
	return d.db.WithContext(ctx).Create(in).Error
}

// Edit implements recording.RecordingStorer.
func (d Recording) Edit(ctx context.Context, in *recording.Recording, changeFn func(*recording.Recording) error, opts ...orm.QueryOption) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := scope(ctx, tx, in, opts...).First(in).Error; err != nil {
			return err
		}
		if err := changeFn(in); err != nil {
			return err
		}
		in.UpdatedAt = orm.Now()
		return tx.Save(in).Error
	})
}

// Del implements recording.RecordingStorer.
func (d Recording) Del(ctx context.Context, in *recording.Recording, opts ...orm.QueryOption) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := scope(ctx, tx, in, opts...).First(in).Error; err != nil {
			return err
		}
		return tx.Delete(&recording.Recording{}, in.ID).Error
	})
}

// Count implements recording.RecordingStorer.
func (d Recording) Count(ctx context.Context, opts ...orm.QueryOption) (int64, error) {
	var total int64
	err := scope(ctx, d.db, new(recording.Recording), opts...).Count(&total).Error
	return total, err
}

// Session implements recording.RecordingStorer.
func (d Recording) Session(ctx context.Context, changeFns ...func(*gorm.DB) error) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, fn := range changeFns {
			if err := fn(tx); err != nil {
				return err
			}
		}
		return nil
	})
}
