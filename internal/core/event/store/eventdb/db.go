package eventdb

import (
	"context"

	"github.com/gowvp/edgecam/internal/core/event"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

var _ event.Storer = DB{}

// DB Related business namespaces
type DB struct {
	db *gorm.DB
}

// NewDB instance object
func NewDB(db *gorm.DB) DB {
	return DB{db: db}
}

// Event Get business instance
func (d DB) Event() event.EventStorer {
	return Event(d)
}

// AutoMigrate sync database
func (d DB) AutoMigrate(ok bool) DB {
	if !ok {
		return d
	}
	if err := d.db.AutoMigrate(
		new(event.Event),
	); err != nil {
		panic(err)
	}
	return d
}

var _ event.EventStorer = Event{}

// Event Related business namespaces
type Event DB

// Find implements event.EventStorer.
func (d Event) Find(ctx context.Context, out *[]*event.Event, pager orm.Pager, opts ...orm.QueryOption) (int64, error) {
	tx := d.db.WithContext(ctx).Model(new(event.Event))
	for _, opt := range opts {
		opt(tx)
	}
	base := tx.Session(&gorm.Session{})

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

// Session implements event.EventStorer.
func (d Event) Session(ctx context.Context, changeFns ...func(*gorm.DB) error) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, fn := range changeFns {
			if err := fn(tx); err != nil {
				return err
			}
		}
		return nil
	})
}
