package motion

import "math"

// 一维核权重放大 256 倍，两次可分离卷积后右移 16 位
const weightScale = 256

type gaussian struct {
	size    int
	weights []uint32
	tmp     []uint16
	index   []int
}

// newGaussian sigma 按核大小推导：0.3*((k-1)*0.5-1)+0.8
func newGaussian(size int) *gaussian {
	g := gaussian{size: size, weights: make([]uint32, size)}
	if size == 1 {
		g.weights[0] = weightScale
		return &g
	}

	sigma := 0.3*(float64(size-1)*0.5-1) + 0.8
	r := size / 2
	fw := make([]float64, size)
	var sum float64
	for i := range size {
		x := float64(i - r)
		fw[i] = math.Exp(-(x * x) / (2 * sigma * sigma))
		sum += fw[i]
	}
	var total uint32
	for i := range size {
		g.weights[i] = uint32(math.Round(fw[i] / sum * weightScale))
		total += g.weights[i]
	}
	// 舍入误差补到中心，保证权重和精确为 weightScale
	g.weights[r] = uint32(int(g.weights[r]) + weightScale - int(total))
	return &g
}

// reflect101 边界镜像，不重复边缘像素：dcb|abcd|cba
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

func (g *gaussian) borderIndex(n int) []int {
	r := g.size / 2
	need := n + 2*r
	if cap(g.index) < need {
		g.index = make([]int, need)
	}
	idx := g.index[:need]
	for i := range idx {
		idx[i] = reflect101(i-r, n)
	}
	return idx
}

// apply 对 src 做可分离高斯平滑写入 dst
func (g *gaussian) apply(src, dst []byte, w, h int) {
	n := w * h
	if g.size == 1 {
		copy(dst, src[:n])
		return
	}
	if cap(g.tmp) < n {
		g.tmp = make([]uint16, n)
	}
	tmp := g.tmp[:n]

	// 水平方向
	idx := g.borderIndex(w)
	for y := range h {
		row := src[y*w : y*w+w]
		out := tmp[y*w : y*w+w]
		for x := range w {
			var acc uint32
			for k, wt := range g.weights {
				acc += wt * uint32(row[idx[x+k]])
			}
			out[x] = uint16(acc)
		}
	}

	// 垂直方向
	idx = g.borderIndex(h)
	half := uint32(1) << 15
	for y := range h {
		out := dst[y*w : y*w+w]
		for x := range w {
			var acc uint32
			for k, wt := range g.weights {
				acc += wt * uint32(tmp[idx[y+k]*w+x])
			}
			out[x] = byte((acc + half) >> 16)
		}
	}
}

// dilate 3x3 矩形结构元膨胀，越界像素不参与
func dilate(mask, scratch []byte, w, h int) {
	for y := range h {
		row := mask[y*w : y*w+w]
		out := scratch[y*w : y*w+w]
		for x := range w {
			v := row[x]
			if x > 0 {
				v |= row[x-1]
			}
			if x < w-1 {
				v |= row[x+1]
			}
			out[x] = v
		}
	}
	for y := range h {
		out := mask[y*w : y*w+w]
		for x := range w {
			v := scratch[y*w+x]
			if y > 0 {
				v |= scratch[(y-1)*w+x]
			}
			if y < h-1 {
				v |= scratch[(y+1)*w+x]
			}
			out[x] = v
		}
	}
}

// labeler 8 连通区域标记，缓冲复用
type labeler struct {
	visited []bool
	stack   []int32
	result  []int
}

// areas 返回每个前景连通区域的像素数
func (l *labeler) areas(mask []byte, w, h int) []int {
	n := w * h
	if cap(l.visited) < n {
		l.visited = make([]bool, n)
	}
	visited := l.visited[:n]
	clear(visited)
	l.result = l.result[:0]

	for start := range n {
		if mask[start] == 0 || visited[start] {
			continue
		}
		visited[start] = true
		l.stack = append(l.stack[:0], int32(start))
		area := 0
		for len(l.stack) > 0 {
			p := int(l.stack[len(l.stack)-1])
			l.stack = l.stack[:len(l.stack)-1]
			area++

			px, py := p%w, p/w
			for dy := -1; dy <= 1; dy++ {
				ny := py + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := px + dx
					if nx < 0 || nx >= w || (dx == 0 && dy == 0) {
						continue
					}
					q := ny*w + nx
					if mask[q] != 0 && !visited[q] {
						visited[q] = true
						l.stack = append(l.stack, int32(q))
					}
				}
			}
		}
		l.result = append(l.result, area)
	}
	return l.result
}
