package progress

import (
	"io"
	"sync/atomic"
	"time"
)

// Reader 统计已读取字节，定时回调进度
// 底层支持 io.Seeker 时可回退重读，用于失败重传
type Reader struct {
	Total   int64
	Current atomic.Int64
	io.Reader
	OnProgress func(current, total int64)
	quit       chan struct{}
}

func NewReader(total int64, reader io.Reader, onProgress func(current, total int64)) *Reader {
	p := Reader{
		Total:      total,
		Reader:     reader,
		OnProgress: onProgress,
		quit:       make(chan struct{}),
	}
	if onProgress != nil {
		go p.Start()
	}
	return &p
}

func (p *Reader) Close() {
	close(p.quit)
}

func (p *Reader) Start() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.OnProgress(p.Current.Load(), p.Total)
		case <-p.quit:
			p.OnProgress(p.Current.Load(), p.Total)
			return
		}
	}
}

func (p *Reader) Read(b []byte) (int, error) {
	n, err := p.Reader.Read(b)
	p.Current.Add(int64(n))
	return n, err
}

// Seek 回退时同步修正进度
func (p *Reader) Seek(offset int64, whence int) (int64, error) {
	s, ok := p.Reader.(io.Seeker)
	if !ok {
		return 0, io.ErrUnexpectedEOF
	}
	pos, err := s.Seek(offset, whence)
	if err == nil {
		p.Current.Store(pos)
	}
	return pos, err
}
