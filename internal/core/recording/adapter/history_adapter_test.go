package adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gowvp/edgecam/internal/core/clip"
	"github.com/gowvp/edgecam/internal/core/delivery"
	"github.com/gowvp/edgecam/internal/core/event"
	"github.com/gowvp/edgecam/internal/core/event/store/eventdb"
	"github.com/gowvp/edgecam/internal/core/frame"
	"github.com/gowvp/edgecam/internal/core/pipeline"
	"github.com/gowvp/edgecam/internal/core/recording"
	"github.com/gowvp/edgecam/internal/core/recording/store/recordingdb"
	"github.com/gowvp/edgecam/internal/core/tagging"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func generateMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqldb}), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	return db, mock
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		in   pipeline.Report
		want string
	}{
		{name: "kept", in: pipeline.Report{}, want: recording.StatusKept},
		{name: "uploaded", in: pipeline.Report{Upload: &delivery.Record{Outcome: delivery.OutcomeSuccess}}, want: recording.StatusUploaded},
		{name: "failed", in: pipeline.Report{Upload: &delivery.Record{Outcome: delivery.OutcomeFailed}}, want: recording.StatusFailed},
		{name: "interrupted", in: pipeline.Report{Interrupted: true}, want: recording.StatusRecorded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := status(tt.in); got != tt.want {
				t.Fatalf("got %s want %s", got, tt.want)
			}
		})
	}
}

func TestSaveWritesRecordingEventsAndSnapshot(t *testing.T) {
	db, mock := generateMockDB(t)
	dir := t.TempDir()
	a := NewHistoryAdapter(
		recording.NewCore(recordingdb.NewDB(db)),
		event.NewCore(eventdb.NewDB(db), dir),
	)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "recordings" (.+) RETURNING`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "events" (.+) RETURNING`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
	mock.ExpectCommit()

	luma := make([]byte, 32*24)
	f := frame.Gray(1, time.Now(), 32, 24, luma)
	started := time.Date(2024, 6, 1, 8, 30, 0, 0, time.Local)
	r := pipeline.Report{
		Clip: clip.Result{
			ID:        "20240601_083000",
			StartedAt: started,
			Duration:  30 * time.Second,
			Frames:    600,
			Retained:  []frame.Indexed{{Index: 0, Frame: f}, {Index: 10, Frame: f}},
		},
		Source: "picamera",
		Tags: tagging.TagSet{
			Classes: map[string]float64{"person": 0.9, "dog": 0.6},
			Detections: []tagging.Detection{
				{Class: "dog", Confidence: 0.6, FrameIndex: 0},
				{Class: "person", Confidence: 0.9, FrameIndex: 10},
			},
		},
		Upload: &delivery.Record{Key: "motion_detections/20240601_083000.mp4", Attempts: 1, Outcome: delivery.OutcomeSuccess},
	}
	if err := a.Save(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal("ExpectationsWereMet err:", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "20240601", "20240601_083000.jpg")); err != nil {
		t.Fatal("snapshot not written:", err)
	}
}

func TestBestDetection(t *testing.T) {
	got := bestDetection([]tagging.Detection{
		{Class: "cat", Confidence: 0.55, FrameIndex: 0},
		{Class: "car", Confidence: 0.8, FrameIndex: 20},
		{Class: "cat", Confidence: 0.7, FrameIndex: 10},
	})
	if got.Class != "car" || got.FrameIndex != 20 {
		t.Fatalf("got %+v", got)
	}
}
