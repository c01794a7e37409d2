package motion

import (
	"testing"
	"time"

	"github.com/gowvp/edgecam/internal/core/frame"
)

const (
	testW = 160
	testH = 120
)

type rect struct{ x, y, w, h int }

func scene(bg byte, fg byte, rects ...rect) frame.Frame {
	luma := make([]byte, testW*testH)
	for i := range luma {
		luma[i] = bg
	}
	for _, r := range rects {
		for y := r.y; y < r.y+r.h; y++ {
			for x := r.x; x < r.x+r.w; x++ {
				luma[y*testW+x] = fg
			}
		}
	}
	return frame.Gray(0, time.Now(), testW, testH, luma)
}

func newScorer(t *testing.T, cfg Config) *Scorer {
	t.Helper()
	s, err := NewScorer(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestFirstFrameSeedsBackground(t *testing.T) {
	s := newScorer(t, DefaultConfig())
	if got := s.Score(scene(50, 200, rect{10, 10, 60, 60})); got.Detected {
		t.Fatalf("first frame must not report motion, got %+v", got)
	}
}

func TestStaticSceneNeverDetects(t *testing.T) {
	s := newScorer(t, DefaultConfig())
	for i := range 50 {
		if got := s.Score(scene(80, 80)); got.Detected || got.Score != 0 {
			t.Fatalf("frame %d: unexpected motion %+v", i, got)
		}
	}
}

func TestMovingSquareDetected(t *testing.T) {
	s := newScorer(t, DefaultConfig())
	s.Score(scene(50, 50))

	got := s.Score(scene(50, 200, rect{60, 40, 40, 40}))
	if !got.Detected {
		t.Fatalf("40x40 square must be detected, got %+v", got)
	}
	// 平滑半径 10 加两次膨胀，区域不会超过方块外扩 12 像素
	upper := (40 + 2*12) * (40 + 2*12)
	if got.MaxArea < 40*40 || got.MaxArea > upper {
		t.Fatalf("max area %d outside [%d, %d]", got.MaxArea, 40*40, upper)
	}
	if got.Score != got.MaxArea || got.Regions != 1 {
		t.Fatalf("single region expected, got %+v", got)
	}

	// 背景已替换，静止的方块不再触发
	if again := s.Score(scene(50, 200, rect{60, 40, 40, 40})); again.Detected {
		t.Fatalf("background not replaced, got %+v", again)
	}
}

func TestAreaBoundary(t *testing.T) {
	cfg := Config{MinArea: 500, BlurKernel: 1, Threshold: 25, DilateIterations: 0}
	tests := []struct {
		name     string
		rects    []rect
		detected bool
		score    int
		maxArea  int
	}{
		{name: "equal to min area", rects: []rect{{10, 10, 20, 25}}, detected: false},
		{name: "just above min area", rects: []rect{{10, 10, 20, 26}}, detected: true, score: 520, maxArea: 520},
		{name: "small region ignored", rects: []rect{{10, 10, 30, 30}, {100, 80, 10, 10}}, detected: true, score: 900, maxArea: 900},
		{name: "two qualifying regions", rects: []rect{{0, 0, 30, 30}, {100, 60, 25, 40}}, detected: true, score: 1900, maxArea: 1000},
		{name: "diagonal touch is connected", rects: []rect{{10, 10, 20, 20}, {30, 30, 20, 20}}, detected: true, score: 800, maxArea: 800},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newScorer(t, cfg)
			s.Score(scene(50, 50))
			got := s.Score(scene(50, 200, tt.rects...))
			if got.Detected != tt.detected {
				t.Fatalf("detected = %v, want %v (%+v)", got.Detected, tt.detected, got)
			}
			if tt.detected && (got.Score != tt.score || got.MaxArea != tt.maxArea) {
				t.Fatalf("got %+v, want score %d max %d", got, tt.score, tt.maxArea)
			}
		})
	}
}

func TestThresholdIsStrict(t *testing.T) {
	cfg := Config{MinArea: 10, BlurKernel: 1, Threshold: 25}
	s := newScorer(t, cfg)
	s.Score(scene(100, 100))
	if got := s.Score(scene(100, 125, rect{0, 0, 50, 50})); got.Detected {
		t.Fatalf("difference equal to threshold must not count, got %+v", got)
	}
	if got := s.Score(scene(100, 151, rect{0, 0, 50, 50})); !got.Detected {
		t.Fatal("difference above threshold must count")
	}
}

func TestResetBackground(t *testing.T) {
	s := newScorer(t, Config{MinArea: 500, BlurKernel: 1, Threshold: 25})
	s.Score(scene(50, 50))
	lit := scene(50, 200, rect{0, 0, 40, 40})
	s.ResetBackground(lit)
	if got := s.Score(lit); got.Detected {
		t.Fatalf("reset background must match the new scene, got %+v", got)
	}
}

func TestResolutionChangeReseeds(t *testing.T) {
	s := newScorer(t, DefaultConfig())
	s.Score(scene(50, 50))
	small := frame.Gray(0, time.Now(), 64, 48, make([]byte, 64*48))
	if got := s.Score(small); got.Detected {
		t.Fatalf("resolution change must reseed, got %+v", got)
	}
}

func TestInvalidConfig(t *testing.T) {
	if _, err := NewScorer(Config{BlurKernel: 20}); err == nil {
		t.Fatal("even kernel must be rejected")
	}
}

func TestGaussianPreservesFlat(t *testing.T) {
	g := newGaussian(21)
	src := make([]byte, 30*20)
	for i := range src {
		src[i] = 173
	}
	dst := make([]byte, len(src))
	g.apply(src, dst, 30, 20)
	for i, v := range dst {
		if v != 173 {
			t.Fatalf("pixel %d = %d", i, v)
		}
	}
}

func TestReflect101(t *testing.T) {
	for _, tt := range []struct{ i, n, want int }{
		{-1, 5, 1}, {-2, 5, 2}, {5, 5, 3}, {6, 5, 2}, {0, 1, 0}, {-7, 3, 1},
	} {
		if got := reflect101(tt.i, tt.n); got != tt.want {
			t.Errorf("reflect101(%d, %d) = %d, want %d", tt.i, tt.n, got, tt.want)
		}
	}
}
