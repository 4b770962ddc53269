package baseline

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/quickeda-cli/internal/problem"
)

// Forest is a random forest of CART trees: bootstrap rows per tree and a
// random feature subset per split. Tree i draws from seed+i, so the result
// does not depend on scheduling.
type Forest struct {
	task     problem.Type
	classes  int
	trees    int
	maxDepth int
	minLeaf  int
	seed     int64
	workers  int
}

// NewForest returns the tree-ensemble family for opt.Task.
func NewForest(opt Options) *Forest {
	return &Forest{
		task:     opt.Task,
		classes:  opt.NumClasses,
		trees:    opt.Trees,
		maxDepth: opt.MaxDepth,
		minLeaf:  opt.MinLeaf,
		seed:     opt.Seed,
		workers:  opt.Workers,
	}
}

func (f *Forest) Name() string { return "random_forest" }

func (f *Forest) Fit(train Data) (Fitted, error) {
	classify := f.task == problem.Classification
	k := f.classes
	if classify {
		if distinctLabels(train.Y) < 2 {
			return nil, ErrSingleClass
		}
		for _, y := range train.Y {
			k = max(k, int(y)+1)
		}
	}
	p := train.width()
	if p == 0 {
		return nil, fmt.Errorf("no feature columns")
	}
	mtry := p / 3
	if classify {
		mtry = int(math.Sqrt(float64(p)))
	}
	mtry = max(1, min(mtry, p))

	trees := make([]*tree, f.trees)
	var g errgroup.Group
	if f.workers > 0 {
		g.SetLimit(f.workers)
	}
	n := train.Len()
	for i := 0; i < f.trees; i++ {
		i := i
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("tree %d: panic: %v", i, r)
				}
			}()
			rng := rand.New(rand.NewSource(f.seed + int64(i)))
			sample := make([]int, n)
			for j := range sample {
				sample[j] = rng.Intn(n)
			}
			t := &tree{classify: classify, classes: k, maxDepth: f.maxDepth, minLeaf: f.minLeaf, mtry: mtry, rng: rng, gain: make([]float64, p)}
			t.root = t.build(train, sample, 0)
			trees[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &forestModel{trees: trees, classify: classify, classes: k, features: p}, nil
}

type node struct {
	leaf      bool
	feature   int
	threshold float64
	left      *node
	right     *node
	// value is the class distribution (classification) or a one-element
	// mean (regression).
	value []float64
}

type tree struct {
	classify bool
	classes  int
	maxDepth int
	minLeaf  int
	mtry     int
	rng      *rand.Rand
	root     *node
	// gain accumulates weighted impurity decrease per feature.
	gain []float64
}

func (t *tree) leafValue(d Data, idx []int) []float64 {
	if t.classify {
		dist := make([]float64, t.classes)
		for _, i := range idx {
			dist[int(d.Y[i])]++
		}
		for c := range dist {
			dist[c] /= float64(len(idx))
		}
		return dist
	}
	var s float64
	for _, i := range idx {
		s += d.Y[i]
	}
	return []float64{s / float64(len(idx))}
}

func (t *tree) impurity(d Data, idx []int) float64 {
	if t.classify {
		counts := make([]float64, t.classes)
		for _, i := range idx {
			counts[int(d.Y[i])]++
		}
		return gini(counts, float64(len(idx)))
	}
	var s, ss float64
	for _, i := range idx {
		s += d.Y[i]
		ss += d.Y[i] * d.Y[i]
	}
	n := float64(len(idx))
	return math.Max(0, ss/n-(s/n)*(s/n))
}

func gini(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	g := 1.0
	for _, c := range counts {
		q := c / n
		g -= q * q
	}
	return g
}

func (t *tree) build(d Data, idx []int, depth int) *node {
	imp := t.impurity(d, idx)
	if depth >= t.maxDepth || len(idx) < 2*t.minLeaf || imp <= 1e-12 {
		return &node{leaf: true, value: t.leafValue(d, idx)}
	}
	best := t.bestSplit(d, idx, imp)
	if best.feature < 0 {
		return &node{leaf: true, value: t.leafValue(d, idx)}
	}
	t.gain[best.feature] += best.gain
	var left, right []int
	for _, i := range idx {
		if d.X[i][best.feature] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &node{
		feature:   best.feature,
		threshold: best.threshold,
		left:      t.build(d, left, depth+1),
		right:     t.build(d, right, depth+1),
	}
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

// bestSplit scans mtry random features. Candidate thresholds are midpoints
// between consecutive distinct sorted values.
func (t *tree) bestSplit(d Data, idx []int, parent float64) split {
	p := len(d.X[0])
	features := t.rng.Perm(p)[:t.mtry]
	best := split{feature: -1}
	n := float64(len(idx))
	order := make([]int, len(idx))
	for _, f := range features {
		copy(order, idx)
		sort.SliceStable(order, func(a, b int) bool { return d.X[order[a]][f] < d.X[order[b]][f] })

		var sc splitCounter
		if t.classify {
			sc = newGiniCounter(d, order, t.classes)
		} else {
			sc = newVarianceCounter(d, order)
		}
		for i := 0; i < len(order)-1; i++ {
			sc.move(d.Y[order[i]])
			lo, hi := d.X[order[i]][f], d.X[order[i+1]][f]
			if lo == hi || i+1 < t.minLeaf || len(order)-i-1 < t.minLeaf {
				continue
			}
			gain := n*parent - sc.weighted()
			if gain > best.gain+1e-12 {
				best = split{feature: f, threshold: lo + (hi-lo)/2, gain: gain}
			}
		}
	}
	return best
}

// splitCounter tracks left/right statistics while rows move from the right
// side to the left in sorted order.
type splitCounter interface {
	move(y float64)
	// weighted returns n_left·impurity(left) + n_right·impurity(right).
	weighted() float64
}

type giniCounter struct {
	left, right []float64
	nl, nr      float64
}

func newGiniCounter(d Data, idx []int, k int) *giniCounter {
	g := &giniCounter{left: make([]float64, k), right: make([]float64, k)}
	for _, i := range idx {
		g.right[int(d.Y[i])]++
	}
	g.nr = float64(len(idx))
	return g
}

func (g *giniCounter) move(y float64) {
	c := int(y)
	g.left[c]++
	g.right[c]--
	g.nl++
	g.nr--
}

func (g *giniCounter) weighted() float64 {
	return g.nl*gini(g.left, g.nl) + g.nr*gini(g.right, g.nr)
}

type varianceCounter struct {
	sl, ssl, sr, ssr float64
	nl, nr           float64
}

func newVarianceCounter(d Data, idx []int) *varianceCounter {
	v := &varianceCounter{}
	for _, i := range idx {
		v.sr += d.Y[i]
		v.ssr += d.Y[i] * d.Y[i]
	}
	v.nr = float64(len(idx))
	return v
}

func (v *varianceCounter) move(y float64) {
	v.sl += y
	v.ssl += y * y
	v.sr -= y
	v.ssr -= y * y
	v.nl++
	v.nr--
}

// weighted uses n·var = Σy² - (Σy)²/n on each side.
func (v *varianceCounter) weighted() float64 {
	var w float64
	if v.nl > 0 {
		w += math.Max(0, v.ssl-v.sl*v.sl/v.nl)
	}
	if v.nr > 0 {
		w += math.Max(0, v.ssr-v.sr*v.sr/v.nr)
	}
	return w
}

func (n *node) predict(x []float64) []float64 {
	for !n.leaf {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

type forestModel struct {
	trees    []*tree
	classify bool
	classes  int
	features int
}

// Predict averages leaf values over trees; classification takes the
// highest mean probability, lowest class index on ties.
func (m *forestModel) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	width := 1
	if m.classify {
		width = m.classes
	}
	acc := make([]float64, width)
	for i, x := range X {
		for c := range acc {
			acc[c] = 0
		}
		for _, t := range m.trees {
			for c, v := range t.root.predict(x) {
				acc[c] += v
			}
		}
		if !m.classify {
			out[i] = acc[0] / float64(len(m.trees))
			continue
		}
		best := 0
		for c := 1; c < width; c++ {
			if acc[c] > acc[best] {
				best = c
			}
		}
		out[i] = float64(best)
	}
	return out
}

// Importances is the mean decrease in impurity, summed over trees in index
// order.
func (m *forestModel) Importances() []float64 {
	total := make([]float64, m.features)
	for _, t := range m.trees {
		for j, g := range t.gain {
			total[j] += g
		}
	}
	return normalizeWeights(total)
}
