package recordingdb

import (
	"context"

	"github.com/gowvp/edgecam/internal/core/recording"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

var _ recording.Storer = DB{}

// DB Related business namespaces
type DB struct {
	db *gorm.DB
}

// NewDB instance object
func NewDB(db *gorm.DB) DB {
	return DB{db: db}
}

// Recording Get business instance
func (d DB) Recording() recording.RecordingStorer {
	return Recording(d)
}

// AutoMigrate sync database
func (d DB) AutoMigrate(ok bool) DB {
	if !ok {
		return d
	}
	if err := d.db.AutoMigrate(
		new(recording.Recording),
	); err != nil {
		panic(err)
	}
	return d
}

// scope 以 model 建立非共享语句，查询条件直接作用其上
func scope(ctx context.Context, db *gorm.DB, model any, opts ...orm.QueryOption) *gorm.DB {
	tx := db.WithContext(ctx).Model(model)
	for _, opt := range opts {
		opt(tx)
	}
	return tx
}
