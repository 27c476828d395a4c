package gbt

import (
	"sort"
)

// node is one vertex of a regression tree. Leaves carry the (already
// learning-rate scaled) contribution; internal nodes route by threshold.
type node struct {
	leaf      bool
	feature   int
	threshold float64
	left      int
	right     int
	value     float64
}

type tree struct {
	nodes []node
}

func (t *tree) predict(row []float64) float64 {
	i := 0
	for !t.nodes[i].leaf {
		n := t.nodes[i]
		if row[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
	return t.nodes[i].value
}

// columns holds the training features column-major with each column's
// row order presorted, shared by every tree of one fit.
type columns struct {
	values [][]float64
	order  [][]int
	rows   int
}

func newColumns(values [][]float64) *columns {
	c := &columns{values: values, order: make([][]int, len(values))}
	if len(values) > 0 {
		c.rows = len(values[0])
	}
	for f, col := range values {
		idx := make([]int, len(col))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return col[idx[a]] < col[idx[b]] })
		c.order[f] = idx
	}
	return c
}

type growConfig struct {
	maxDepth  int
	minNode   int
	learnRate float64
}

// split accumulates the running left-hand statistics of one node while a
// feature column is scanned in sorted order
type split struct {
	sum, count float64
	last       float64
	seen       bool

	bestGain      float64
	bestFeature   int
	bestThreshold float64
}

// grow fits one squared-error tree to the residuals level by level. Each
// level costs one pass over every presorted column, so a tree of depth d
// takes O(d * features * rows). gain accumulates split gain per feature.
func grow(cols *columns, residual []float64, cfg growConfig, gain []float64) tree {
	t := tree{nodes: []node{{leaf: true}}}
	nodeOf := make([]int, cols.rows)

	sum := []float64{0}
	count := []float64{float64(cols.rows)}
	for _, r := range residual {
		sum[0] += r
	}

	active := []int{0}
	for depth := 0; depth < cfg.maxDepth && len(active) > 0; depth++ {
		splits := make(map[int]*split, len(active))
		for _, id := range active {
			if count[id] >= float64(2*cfg.minNode) {
				splits[id] = &split{bestFeature: -1}
			}
		}
		if len(splits) == 0 {
			break
		}

		for f, order := range cols.order {
			for _, s := range splits {
				s.sum, s.count, s.seen = 0, 0, false
			}
			col := cols.values[f]
			for _, i := range order {
				id := nodeOf[i]
				s, ok := splits[id]
				if !ok {
					continue
				}
				v := col[i]
				if s.seen && v > s.last {
					rightCount := count[id] - s.count
					if s.count >= float64(cfg.minNode) && rightCount >= float64(cfg.minNode) {
						rightSum := sum[id] - s.sum
						g := s.sum*s.sum/s.count + rightSum*rightSum/rightCount - sum[id]*sum[id]/count[id]
						if g > s.bestGain {
							s.bestGain = g
							s.bestFeature = f
							s.bestThreshold = (s.last + v) / 2
						}
					}
				}
				s.sum += residual[i]
				s.count++
				s.last = v
				s.seen = true
			}
		}

		var next []int
		for _, id := range active {
			s, ok := splits[id]
			if !ok || s.bestFeature < 0 || s.bestGain <= 1e-12 {
				continue
			}
			left, right := len(t.nodes), len(t.nodes)+1
			t.nodes = append(t.nodes, node{leaf: true}, node{leaf: true})
			sum = append(sum, 0, 0)
			count = append(count, 0, 0)
			t.nodes[id] = node{feature: s.bestFeature, threshold: s.bestThreshold, left: left, right: right}
			gain[s.bestFeature] += s.bestGain
			next = append(next, left, right)
		}

		// route rows of split nodes to their children
		for i := range nodeOf {
			n := t.nodes[nodeOf[i]]
			if n.leaf {
				continue
			}
			child := n.right
			if cols.values[n.feature][i] <= n.threshold {
				child = n.left
			}
			nodeOf[i] = child
			sum[child] += residual[i]
			count[child]++
		}
		active = next
	}

	for id := range t.nodes {
		if t.nodes[id].leaf && count[id] > 0 {
			t.nodes[id].value = cfg.learnRate * sum[id] / count[id]
		}
	}
	return t
}
