package training

import (
	"math"
	"math/rand"
)

// RandomForest bags decision trees over bootstrap samples with sqrt
// feature subsampling at each split.
type RandomForest struct {
	Trees      []*DecisionTree
	NumClasses int
	NumTrees   int
	MaxDepth   int
	Seed       int64
}

func newRandomForest(seed int64) *RandomForest {
	return &RandomForest{NumTrees: 50, MaxDepth: 8, Seed: seed}
}

func (m *RandomForest) fit(X [][]float64, y []int) {
	m.NumClasses = numClasses(y)
	numFeatures := len(X[0])
	maxFeatures := int(math.Sqrt(float64(numFeatures)))
	if maxFeatures < 1 {
		maxFeatures = 1
	}
	rng := rand.New(rand.NewSource(m.Seed))

	m.Trees = make([]*DecisionTree, m.NumTrees)
	for t := 0; t < m.NumTrees; t++ {
		sampleX := make([][]float64, len(X))
		sampleY := make([]int, len(y))
		for i := range X {
			j := rng.Intn(len(X))
			sampleX[i] = X[j]
			sampleY[i] = y[j]
		}
		tree := newClassificationTree(m.MaxDepth, 2).
			withFeatureSubsampling(maxFeatures, rng)
		tree.NumClasses = m.NumClasses
		tree.fitWithFixedClasses(sampleX, sampleY)
		m.Trees[t] = tree
	}
}

func (m *RandomForest) predict(X [][]float64) []int {
	labels := make([]int, len(X))
	for i, proba := range m.predictProba(X) {
		best, bestP := 0, proba[0]
		for c, p := range proba {
			if p > bestP {
				best, bestP = c, p
			}
		}
		labels[i] = best
	}
	return labels
}

func (m *RandomForest) predictProba(X [][]float64) [][]float64 {
	probas := make([][]float64, len(X))
	for i, x := range X {
		sum := make([]float64, m.NumClasses)
		for _, tree := range m.Trees {
			for c, p := range tree.predictProbaOne(x) {
				sum[c] += p
			}
		}
		for c := range sum {
			sum[c] /= float64(len(m.Trees))
		}
		probas[i] = sum
	}
	return probas
}

// featureImportances averages the per-tree impurity-decrease importances.
func (m *RandomForest) featureImportances() []float64 {
	if len(m.Trees) == 0 {
		return nil
	}
	importance := make([]float64, m.Trees[0].NumFeatures)
	for _, tree := range m.Trees {
		for f, v := range tree.Importance {
			importance[f] += v
		}
	}
	for f := range importance {
		importance[f] /= float64(len(m.Trees))
	}
	normalizeImportance(importance)
	return importance
}
