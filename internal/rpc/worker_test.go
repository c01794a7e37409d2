package rpc

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/gowvp/edgecam/internal/core/frame"
	"github.com/vmihailenco/msgpack/v5"
)

// fakeWorker 读取请求并按 handle 返回响应
func fakeWorker(t *testing.T, handle func(workerRequest) any) *WorkerClassifier {
	t.Helper()
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	go func() {
		defer respW.Close()
		for {
			data, err := readMessage(reqR)
			if err != nil {
				return
			}
			var req workerRequest
			if err := msgpack.Unmarshal(data, &req); err != nil {
				return
			}
			resp := handle(req)
			if resp == nil {
				continue
			}
			b, _ := msgpack.Marshal(resp)
			if err := writeMessage(respW, b); err != nil {
				return
			}
		}
	}()
	t.Cleanup(func() { _ = reqW.Close() })
	return newWorker(reqW, respR, 200*time.Millisecond)
}

func TestWorkerClassifierInfer(t *testing.T) {
	var seen workerRequest
	w := fakeWorker(t, func(r workerRequest) any {
		seen = r
		return map[string]any{"detections": []any{
			map[string]any{"class": "cat", "confidence": 0.8, "bbox": []any{1, 2, 3, 4}},
		}}
	})
	f := frame.Gray(3, time.Now(), 4, 4, make([]byte, 16))
	dets, err := w.Infer(context.Background(), f)
	if err != nil {
		t.Fatal(err)
	}
	if len(dets) != 1 || dets[0].Class != "cat" || dets[0].Box.Y2 != 4 {
		t.Fatalf("detections %+v", dets)
	}
	if seen.Format != "yuv420p" || seen.Seq != 3 || len(seen.Data) != frame.Size(4, 4) {
		t.Fatalf("request %+v", seen)
	}
}

func TestWorkerClassifierProtocolErrorKeepsWorker(t *testing.T) {
	calls := 0
	w := fakeWorker(t, func(workerRequest) any {
		calls++
		if calls == 1 {
			return map[string]any{"error": "bad frame"}
		}
		return map[string]any{"detections": []any{}}
	})
	f := frame.Gray(1, time.Now(), 4, 4, nil)
	if _, err := w.Infer(context.Background(), f); err == nil {
		t.Fatal("expected worker error")
	}
	if _, err := w.Infer(context.Background(), f); err != nil {
		t.Fatalf("worker must stay usable: %v", err)
	}
}

func TestWorkerClassifierTimeoutBreaks(t *testing.T) {
	w := fakeWorker(t, func(workerRequest) any { return nil })
	f := frame.Gray(1, time.Now(), 4, 4, nil)
	if _, err := w.Infer(context.Background(), f); !errors.Is(err, ErrWorkerBroken) {
		t.Fatalf("err = %v", err)
	}
	if _, err := w.Infer(context.Background(), f); !errors.Is(err, ErrWorkerBroken) {
		t.Fatalf("err = %v", err)
	}
}

func TestReadMessageTooLarge(t *testing.T) {
	r, wr := io.Pipe()
	go func() {
		_, _ = wr.Write([]byte{0xff, 0xff, 0xff, 0xff})
		_ = wr.Close()
	}()
	if _, err := readMessage(r); err == nil {
		t.Fatal("expected size error")
	}
}
