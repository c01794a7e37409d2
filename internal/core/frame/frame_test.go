package frame

import (
	"bytes"
	"image/jpeg"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	if _, err := New(1, time.Now(), 5, 4, make([]byte, 30)); err == nil {
		t.Fatal("odd width must be rejected")
	}
	if _, err := New(1, time.Now(), 4, 4, make([]byte, 10)); err == nil {
		t.Fatal("short buffer must be rejected")
	}
	f, err := New(1, time.Now(), 4, 4, make([]byte, Size(4, 4)))
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Luma()) != 16 {
		t.Fatalf("luma len = %d", len(f.Luma()))
	}
}

func TestYCbCrEncode(t *testing.T) {
	luma := make([]byte, 16*16)
	for i := range luma {
		luma[i] = byte(i)
	}
	f := Gray(1, time.Now(), 16, 16, luma)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.YCbCr(), nil); err != nil {
		t.Fatal(err)
	}
	img, err := jpeg.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 16 {
		t.Fatalf("bounds = %v", b)
	}
}
