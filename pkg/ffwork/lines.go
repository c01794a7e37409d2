package ffwork

import (
	"bufio"
	"io"

	"github.com/ixugo/goddd/pkg/queue"
)

func readLines(r io.Reader, q *queue.CirQueue[string]) {
	scan := bufio.NewScanner(r)
	for scan.Scan() {
		q.Push(scan.Text())
	}
}
