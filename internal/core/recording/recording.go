package recording

import (
	"context"
	"log/slog"

	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/jinzhu/copier"
	"gorm.io/gorm"
)

// RecordingStorer Instantiation interface
type RecordingStorer interface {
	Find(context.Context, *[]*Recording, orm.Pager, ...orm.QueryOption) (int64, error)
	Get(context.Context, *Recording, ...orm.QueryOption) error
	Add(context.Context, *Recording) error
	Edit(context.Context, *Recording, func(*Recording) error, ...orm.QueryOption) error
	Del(context.Context, *Recording, ...orm.QueryOption) error
	Count(context.Context, ...orm.QueryOption) (int64, error)

	Session(context.Context, ...func(*gorm.DB) error) error
}

// FindRecordings 分页查询片段历史，支持采集源、状态、类别与时间范围筛选
func (c Core) FindRecordings(ctx context.Context, in *FindRecordingInput) ([]*Recording, int64, error) {
	query := orm.NewQuery(4).OrderBy("started_at DESC")

	if in.Source != "" {
		query.Where("source = ?", in.Source)
	}
	if in.Status != "" {
		query.Where("status = ?", in.Status)
	}
	if in.Tag != "" {
		query.Where("tags LIKE ?", "%"+in.Tag+"%")
	}
	if in.StartMs > 0 && in.EndMs > 0 {
		query.Where("started_at >= ? AND started_at <= ?", in.StartAt(), in.EndAt())
	}

	items := make([]*Recording, 0, in.Limit())
	total, err := c.store.Recording().Find(ctx, &items, in, query.Encode()...)
	if err != nil {
		return nil, 0, reason.ErrDB.Withf(`Find in[%+v] err[%s]`, in, err.Error())
	}
	return items, total, nil
}

// GetRecording Query a single object
func (c Core) GetRecording(ctx context.Context, id int64) (*Recording, error) {
	var out Recording
	if err := c.store.Recording().Get(ctx, &out, orm.Where("id=?", id)); err != nil {
		if orm.IsErrRecordNotFound(err) {
			return nil, reason.ErrNotFound.Withf(`Get id[%v] err[%s]`, id, err.Error())
		}
		return nil, reason.ErrDB.Withf(`Get id[%v] err[%s]`, id, err.Error())
	}
	return &out, nil
}

// GetLatestRecording 最近一次片段
func (c Core) GetLatestRecording(ctx context.Context) (*Recording, error) {
	var out Recording
	if err := c.store.Recording().Get(ctx, &out, orm.OrderBy("started_at DESC")); err != nil {
		if orm.IsErrRecordNotFound(err) {
			return nil, reason.ErrNotFound.Withf(`no recording yet`)
		}
		return nil, reason.ErrDB.Withf(`GetLatest err[%s]`, err.Error())
	}
	return &out, nil
}

// AddRecording Insert into database
func (c Core) AddRecording(ctx context.Context, in *AddRecordingInput) (*Recording, error) {
	var out Recording
	if err := copier.Copy(&out, in); err != nil {
		slog.ErrorContext(ctx, "Copy", "err", err)
	}
	if out.Status == "" {
		out.Status = StatusRecorded
	}

	if err := c.store.Recording().Add(ctx, &out); err != nil {
		return nil, reason.ErrDB.Withf(`Add err[%s]`, err.Error())
	}
	return &out, nil
}

// EditRecording 更新非零字段
func (c Core) EditRecording(ctx context.Context, in *EditRecordingInput, id int64) (*Recording, error) {
	var out Recording
	if err := c.store.Recording().Edit(ctx, &out, func(b *Recording) error {
		return copier.CopyWithOption(b, in, copier.Option{IgnoreEmpty: true})
	}, orm.Where("id=?", id)); err != nil {
		if orm.IsErrRecordNotFound(err) {
			return nil, reason.ErrNotFound.Withf(`Edit id[%v] err[%s]`, id, err.Error())
		}
		return nil, reason.ErrDB.Withf(`Edit id[%v] err[%s]`, id, err.Error())
	}
	return &out, nil
}

// DelRecording 删除历史记录，不删除文件
func (c Core) DelRecording(ctx context.Context, id int64) (*Recording, error) {
	var out Recording
	if err := c.store.Recording().Del(ctx, &out, orm.Where("id=?", id)); err != nil {
		return nil, reason.ErrDB.Withf(`Del id[%v] err[%s]`, id, err.Error())
	}
	return &out, nil
}

// CountByStatus 按状态统计片段数量
func (c Core) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	var counts []StatusCount
	err := c.store.Recording().Session(ctx, func(db *gorm.DB) error {
		return db.Model(&Recording{}).
			Select("status, COUNT(*) as cnt").
			Group("status").
			Find(&counts).Error
	})
	if err != nil {
		return nil, reason.ErrDB.Withf(`CountByStatus err[%s]`, err.Error())
	}
	return counts, nil
}
