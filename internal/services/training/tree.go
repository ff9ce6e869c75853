package training

import (
	"math"
	"math/rand"
	"sort"
)

// TreeNode is one node of a CART tree. Exported fields so fitted models
// survive gob round-trips.
type TreeNode struct {
	Feature   int
	Threshold float64
	Left      *TreeNode
	Right     *TreeNode
	// leaf payload
	ClassCounts []int
	Value       float64
}

func (n *TreeNode) isLeaf() bool { return n.Left == nil && n.Right == nil }

// DecisionTree is a CART classifier or regressor depending on how it was
// grown. Classification splits on Gini impurity, regression on variance.
type DecisionTree struct {
	Root        *TreeNode
	MaxDepth    int
	MinSamples  int
	NumClasses  int
	NumFeatures int
	Importance  []float64
	Regression  bool

	maxFeatures int
	rng         *rand.Rand
}

func newClassificationTree(maxDepth, minSamples int) *DecisionTree {
	return &DecisionTree{MaxDepth: maxDepth, MinSamples: minSamples}
}

func newRegressionTree(maxDepth, minSamples int) *DecisionTree {
	return &DecisionTree{MaxDepth: maxDepth, MinSamples: minSamples, Regression: true}
}

// withFeatureSubsampling restricts each split to a random subset of
// features, the way random forests decorrelate their members.
func (t *DecisionTree) withFeatureSubsampling(maxFeatures int, rng *rand.Rand) *DecisionTree {
	t.maxFeatures = maxFeatures
	t.rng = rng
	return t
}

func (t *DecisionTree) fit(X [][]float64, y []int) {
	t.NumFeatures = len(X[0])
	t.NumClasses = numClasses(y)
	t.Importance = make([]float64, t.NumFeatures)
	indexes := make([]int, len(X))
	for i := range indexes {
		indexes[i] = i
	}
	t.Root = t.grow(X, y, nil, indexes, 0)
	normalizeImportance(t.Importance)
}

// fitWithFixedClasses grows the tree with NumClasses preset by the
// caller. A bootstrap sample can miss the highest label, which would
// otherwise shrink the leaf count vectors.
func (t *DecisionTree) fitWithFixedClasses(X [][]float64, y []int) {
	t.NumFeatures = len(X[0])
	t.Importance = make([]float64, t.NumFeatures)
	indexes := make([]int, len(X))
	for i := range indexes {
		indexes[i] = i
	}
	t.Root = t.grow(X, y, nil, indexes, 0)
	normalizeImportance(t.Importance)
}

func (t *DecisionTree) fitRegression(X [][]float64, targets []float64) {
	t.NumFeatures = len(X[0])
	t.Importance = make([]float64, t.NumFeatures)
	indexes := make([]int, len(X))
	for i := range indexes {
		indexes[i] = i
	}
	t.Root = t.grow(X, nil, targets, indexes, 0)
	normalizeImportance(t.Importance)
}

// grow recursively partitions indexes. Exactly one of y (classification)
// or targets (regression) is non-nil.
func (t *DecisionTree) grow(X [][]float64, y []int, targets []float64, indexes []int, depth int) *TreeNode {
	if depth >= t.MaxDepth || len(indexes) < t.MinSamples || t.pure(y, targets, indexes) {
		return t.leaf(y, targets, indexes)
	}

	feature, threshold, gain := t.bestSplit(X, y, targets, indexes)
	if feature < 0 || gain <= 1e-12 {
		return t.leaf(y, targets, indexes)
	}

	var left, right []int
	for _, i := range indexes {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return t.leaf(y, targets, indexes)
	}

	t.Importance[feature] += gain * float64(len(indexes))
	return &TreeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      t.grow(X, y, targets, left, depth+1),
		Right:     t.grow(X, y, targets, right, depth+1),
	}
}

func (t *DecisionTree) pure(y []int, targets []float64, indexes []int) bool {
	if t.Regression {
		first := targets[indexes[0]]
		for _, i := range indexes[1:] {
			if targets[i] != first {
				return false
			}
		}
		return true
	}
	first := y[indexes[0]]
	for _, i := range indexes[1:] {
		if y[i] != first {
			return false
		}
	}
	return true
}

func (t *DecisionTree) leaf(y []int, targets []float64, indexes []int) *TreeNode {
	if t.Regression {
		sum := 0.0
		for _, i := range indexes {
			sum += targets[i]
		}
		return &TreeNode{Value: sum / float64(len(indexes))}
	}
	counts := make([]int, t.NumClasses)
	for _, i := range indexes {
		counts[y[i]]++
	}
	return &TreeNode{ClassCounts: counts}
}

func (t *DecisionTree) candidateFeatures() []int {
	features := make([]int, t.NumFeatures)
	for i := range features {
		features[i] = i
	}
	if t.maxFeatures <= 0 || t.maxFeatures >= t.NumFeatures || t.rng == nil {
		return features
	}
	t.rng.Shuffle(len(features), func(i, j int) {
		features[i], features[j] = features[j], features[i]
	})
	return features[:t.maxFeatures]
}

func (t *DecisionTree) bestSplit(X [][]float64, y []int, targets []float64, indexes []int) (int, float64, float64) {
	bestFeature, bestThreshold, bestGain := -1, 0.0, 0.0
	parent := t.impurity(y, targets, indexes)

	for _, feature := range t.candidateFeatures() {
		values := make([]float64, 0, len(indexes))
		for _, i := range indexes {
			values = append(values, X[i][feature])
		}
		sort.Float64s(values)

		for v := 1; v < len(values); v++ {
			if values[v] == values[v-1] {
				continue
			}
			threshold := (values[v] + values[v-1]) / 2

			var left, right []int
			for _, i := range indexes {
				if X[i][feature] <= threshold {
					left = append(left, i)
				} else {
					right = append(right, i)
				}
			}
			if len(left) == 0 || len(right) == 0 {
				continue
			}

			n := float64(len(indexes))
			weighted := float64(len(left))/n*t.impurity(y, targets, left) +
				float64(len(right))/n*t.impurity(y, targets, right)
			gain := parent - weighted
			if gain > bestGain {
				bestFeature, bestThreshold, bestGain = feature, threshold, gain
			}
		}
	}
	return bestFeature, bestThreshold, bestGain
}

func (t *DecisionTree) impurity(y []int, targets []float64, indexes []int) float64 {
	if t.Regression {
		mean, sq := 0.0, 0.0
		for _, i := range indexes {
			mean += targets[i]
		}
		mean /= float64(len(indexes))
		for _, i := range indexes {
			d := targets[i] - mean
			sq += d * d
		}
		return sq / float64(len(indexes))
	}
	counts := make([]int, t.NumClasses)
	for _, i := range indexes {
		counts[y[i]]++
	}
	gini := 1.0
	for _, c := range counts {
		p := float64(c) / float64(len(indexes))
		gini -= p * p
	}
	return gini
}

func (t *DecisionTree) predictOne(x []float64) int {
	node := t.Root
	for !node.isLeaf() {
		if x[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	best, bestCount := 0, -1
	for class, count := range node.ClassCounts {
		if count > bestCount {
			best, bestCount = class, count
		}
	}
	return best
}

func (t *DecisionTree) predictProbaOne(x []float64) []float64 {
	node := t.Root
	for !node.isLeaf() {
		if x[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	proba := make([]float64, t.NumClasses)
	total := 0
	for _, count := range node.ClassCounts {
		total += count
	}
	if total == 0 {
		return proba
	}
	for class, count := range node.ClassCounts {
		proba[class] = float64(count) / float64(total)
	}
	return proba
}

func (t *DecisionTree) predictValueOne(x []float64) float64 {
	node := t.Root
	for !node.isLeaf() {
		if x[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Value
}

func numClasses(y []int) int {
	max := 0
	for _, label := range y {
		if label > max {
			max = label
		}
	}
	return max + 1
}

func normalizeImportance(importance []float64) {
	total := 0.0
	for _, v := range importance {
		total += v
	}
	if total <= 0 || math.IsNaN(total) {
		return
	}
	for i := range importance {
		importance[i] /= total
	}
}
