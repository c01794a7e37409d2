package data

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestReconcileClips(t *testing.T) {
	dir := t.TempDir()
	known := filepath.Join(dir, "20240101_120000_usb_motion_clip.mp4")
	orphan := filepath.Join(dir, "20240102_090000_picamera_motion_clip.mp4")
	for _, name := range []string{
		known, orphan,
		filepath.Join(dir, "20240102_090000_picamera_motion_clip.h264.mp4"),
		filepath.Join(dir, "notes.txt"),
	} {
		if err := os.WriteFile(name, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	sqldb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqldb}), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	// WalkDir 按文件名顺序遍历
	mock.ExpectQuery(`SELECT \* FROM "recordings" WHERE path = \$1`).
		WithArgs(known, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "path"}).AddRow(1, known))
	mock.ExpectQuery(`SELECT \* FROM "recordings" WHERE path = \$1`).
		WithArgs(orphan, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "recordings" (.+) RETURNING`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectCommit()

	n, err := ReconcileClips(context.Background(), db, dir)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("reconciled %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestReconcileClipsMissingDir(t *testing.T) {
	n, err := ReconcileClips(context.Background(), nil, filepath.Join(t.TempDir(), "absent"))
	if err != nil || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}
