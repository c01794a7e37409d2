package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gowvp/edgecam/internal/conf"
	"github.com/gowvp/edgecam/internal/core/credential"
	"github.com/gowvp/edgecam/internal/core/frame"
	"github.com/gowvp/edgecam/internal/core/pipeline"
	"github.com/gowvp/edgecam/internal/core/preview"
	"github.com/gowvp/edgecam/internal/core/recording"
	"github.com/gowvp/edgecam/internal/core/recording/store/recordingdb"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type fixedStats pipeline.Stats

func (f fixedStats) Stats() pipeline.Stats { return pipeline.Stats(f) }

type fixedCreds credential.State

func (f fixedCreds) State() credential.State { return credential.State(f) }

func newTestHandler(t *testing.T) (http.Handler, sqlmock.Sqlmock, *preview.Hub) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqldb}), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	bc := conf.DefaultConfig()
	bc.BuildVersion = "v0.0.1"
	bc.Clip.Dir = t.TempDir()

	recCore := recording.NewCore(recordingdb.NewDB(db))
	hub := preview.NewHub(75)
	uc := Usecase{
		Conf:       &bc,
		ClipAPI:    NewClipAPI(recCore, NewEventCore(nil, &bc)),
		PreviewAPI: PreviewAPI{hub: hub, interval: time.Millisecond},
		StatusAPI: StatusAPI{
			conf:       &bc,
			pipeline:   fixedStats{State: "waiting", Source: "usb", FramesRead: 42},
			creds:      fixedCreds(credential.StateActive),
			recordings: recCore,
		},
	}
	return NewHTTPHandler(&uc), mock, hub
}

func TestHealth(t *testing.T) {
	h, _, _ := newTestHandler(t)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("code %d body %s", w.Code, w.Body.String())
	}
	var out getHealthOutput
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Version != "v0.0.1" || out.State != "waiting" {
		t.Fatalf("health %+v", out)
	}
}

func TestPreviewSnapshot(t *testing.T) {
	h, _, hub := newTestHandler(t)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/preview.jpg", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("before first frame: code %d", w.Code)
	}

	hub.Publish(frame.Gray(9, time.Now(), 32, 24, make([]byte, 32*24)))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/preview.jpg", nil))
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/jpeg" {
		t.Fatalf("code %d type %s", w.Code, w.Header().Get("Content-Type"))
	}
	if w.Header().Get("X-Frame-Seq") != "9" {
		t.Fatalf("seq %s", w.Header().Get("X-Frame-Seq"))
	}
	if b := w.Body.Bytes(); len(b) < 2 || b[0] != 0xFF || b[1] != 0xD8 {
		t.Fatal("body is not a jpeg")
	}
}

func TestPreviewStreamStopsWithClient(t *testing.T) {
	h, _, hub := newTestHandler(t)
	hub.Publish(frame.Gray(1, time.Now(), 16, 16, nil))

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/preview.mjpeg", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		h.ServeHTTP(w, req)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not stop after client left")
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "multipart/x-mixed-replace") {
		t.Fatalf("content type %s", w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), "--"+mjpegBoundary) {
		t.Fatal("no frame written")
	}
}

func TestGetClip(t *testing.T) {
	h, mock, _ := newTestHandler(t)
	mock.ExpectQuery(`SELECT \* FROM "recordings" WHERE id=\$1 (.+) LIMIT \$2`).
		WithArgs(7, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "clip_id", "status"}).AddRow(7, "20240101_120000", recording.StatusKept))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/clips/7", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("code %d body %s", w.Code, w.Body.String())
	}
	var out recording.Recording
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.ID != 7 || out.Status != recording.StatusKept {
		t.Fatalf("clip %+v", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestStats(t *testing.T) {
	h, mock, _ := newTestHandler(t)
	mock.ExpectQuery(`SELECT status, COUNT\(\*\) as cnt FROM "recordings" GROUP BY`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "cnt"}).
			AddRow(recording.StatusUploaded, 3).
			AddRow(recording.StatusFailed, 1))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("code %d body %s", w.Code, w.Body.String())
	}
	var out getStatsOutput
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Pipeline.FramesRead != 42 || out.Credential != credential.StateActive.String() || len(out.Clips) != 2 {
		t.Fatalf("stats %+v", out)
	}
	if out.Telemetry != nil {
		t.Fatal("telemetry disabled must be omitted")
	}
}
