package prep

import (
	"math"
	"math/rand"
	"sort"

	"github.com/KaramelBytes/quickeda-cli/internal/errs"
)

// Split partitions row indices into disjoint training and evaluation sets
// that together cover every row. Both slices are sorted ascending.
type Split struct {
	Train []int `json:"train" yaml:"train"`
	Eval  []int `json:"eval" yaml:"eval"`
}

func validRatio(ratio float64) error {
	if math.IsNaN(ratio) || ratio <= 0 || ratio >= 1 {
		return errs.Config("train_test_split_ratio", ratio, "must be in (0, 1)")
	}
	return nil
}

// trainCount keeps at least one row on each side whenever n >= 2.
func trainCount(n int, ratio float64) int {
	k := int(math.Round(float64(n) * ratio))
	if n >= 2 {
		k = max(1, min(k, n-1))
	}
	return min(k, n)
}

// NewSplit shuffles 0..n-1 with a seeded source and cuts it at ratio.
func NewSplit(n int, ratio float64, seed int64) (Split, error) {
	if err := validRatio(ratio); err != nil {
		return Split{}, err
	}
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(n)
	k := trainCount(n, ratio)
	s := Split{Train: append([]int(nil), perm[:k]...), Eval: append([]int(nil), perm[k:]...)}
	sort.Ints(s.Train)
	sort.Ints(s.Eval)
	return s, nil
}

// NewStratifiedSplit splits every label group separately so class
// proportions survive in both halves. Groups are visited in label order.
func NewStratifiedSplit(labels []string, ratio float64, seed int64) (Split, error) {
	if err := validRatio(ratio); err != nil {
		return Split{}, err
	}
	groups := make(map[string][]int)
	for i, l := range labels {
		groups[l] = append(groups[l], i)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rng := rand.New(rand.NewSource(seed))
	s := Split{Train: []int{}, Eval: []int{}}
	for _, k := range keys {
		idx := groups[k]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		cut := trainCount(len(idx), ratio)
		s.Train = append(s.Train, idx[:cut]...)
		s.Eval = append(s.Eval, idx[cut:]...)
	}
	sort.Ints(s.Train)
	sort.Ints(s.Eval)
	return s, nil
}
