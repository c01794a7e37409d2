package event

import (
	"context"

	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/ixugo/goddd/pkg/web"
	"gorm.io/gorm"
)

// EventStorer Instantiation interface
type EventStorer interface {
	Find(context.Context, *[]*Event, orm.Pager, ...orm.QueryOption) (int64, error)
	Session(context.Context, ...func(*gorm.DB) error) error
}

type FindEventInput struct {
	web.PagerFilter
	RecordingID int64  `form:"recording_id"`
	Label       string `form:"label"`
}

// FindEvents 分页查询识别事件
func (c Core) FindEvents(ctx context.Context, in *FindEventInput) ([]*Event, int64, error) {
	query := orm.NewQuery(3).OrderBy("score DESC")
	if in.RecordingID > 0 {
		query.Where("recording_id = ?", in.RecordingID)
	}
	if in.Label != "" {
		query.Where("label = ?", in.Label)
	}

	items := make([]*Event, 0, in.Limit())
	total, err := c.store.Event().Find(ctx, &items, in, query.Encode()...)
	if err != nil {
		return nil, 0, reason.ErrDB.Withf(`Find in[%+v] err[%s]`, in, err.Error())
	}
	return items, total, nil
}

// AddEvents 批量写入同一片段的识别事件
func (c Core) AddEvents(ctx context.Context, events []*Event) error {
	if len(events) == 0 {
		return nil
	}
	err := c.store.Event().Session(ctx, func(tx *gorm.DB) error {
		return tx.CreateInBatches(events, 50).Error
	})
	if err != nil {
		return reason.ErrDB.Withf(`AddEvents count[%d] err[%s]`, len(events), err.Error())
	}
	return nil
}
