package eventdb

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gowvp/edgecam/internal/core/event"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/web"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func generateMockDB() (*gorm.DB, sqlmock.Sqlmock, error) {
	sqldb, mock, err := sqlmock.New()
	if err != nil {
		return nil, nil, err
	}
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqldb}), &gorm.Config{})
	return db, mock, err
}

func TestEventFind(t *testing.T) {
	db, mock, err := generateMockDB()
	if err != nil {
		t.Fatal(err)
	}
	store := NewDB(db).Event()

	mock.ExpectQuery(`SELECT count\(\*\) FROM "events" WHERE recording_id = \$1`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT \* FROM "events" WHERE recording_id = \$1 (.+)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "recording_id", "label", "score"}).AddRow(9, 3, "person", 0.91))

	var out []*event.Event
	pager := web.PagerFilter{Page: 1, Size: 20}
	total, err := store.Find(context.Background(), &out, &pager, orm.Where("recording_id = ?", 3))
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(out) != 1 || out[0].Label != "person" {
		t.Fatalf("total=%d out=%+v", total, out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal("ExpectationsWereMet err:", err)
	}
}

func TestEventAddBatch(t *testing.T) {
	db, mock, err := generateMockDB()
	if err != nil {
		t.Fatal(err)
	}
	core := event.NewCore(NewDB(db), t.TempDir())

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "events" (.+) RETURNING`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
	mock.ExpectCommit()

	err = core.AddEvents(context.Background(), []*event.Event{
		{RecordingID: 1, Label: "person", Score: 0.8},
		{RecordingID: 1, Label: "dog", Score: 0.6},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal("ExpectationsWereMet err:", err)
	}
}
