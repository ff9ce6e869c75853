package training

import "math"

// GradientBoosting fits shallow regression trees to the logistic
// gradient, one additive round per class for multiclass targets.
type GradientBoosting struct {
	// Trees[round][class]
	Trees        [][]*DecisionTree
	InitScores   []float64
	NumClasses   int
	NumRounds    int
	MaxDepth     int
	LearningRate float64
}

func newGradientBoosting() *GradientBoosting {
	return &GradientBoosting{NumRounds: 50, MaxDepth: 3, LearningRate: 0.1}
}

func (m *GradientBoosting) fit(X [][]float64, y []int) {
	m.NumClasses = numClasses(y)
	n := len(X)

	// initialize with log class priors
	m.InitScores = make([]float64, m.NumClasses)
	counts := make([]int, m.NumClasses)
	for _, label := range y {
		counts[label]++
	}
	for c, count := range counts {
		p := (float64(count) + 1) / (float64(n) + float64(m.NumClasses))
		m.InitScores[c] = math.Log(p)
	}

	scores := make([][]float64, n)
	for i := range scores {
		scores[i] = append([]float64(nil), m.InitScores...)
	}

	m.Trees = make([][]*DecisionTree, m.NumRounds)
	for round := 0; round < m.NumRounds; round++ {
		m.Trees[round] = make([]*DecisionTree, m.NumClasses)
		probas := softmaxRows(scores)

		for c := 0; c < m.NumClasses; c++ {
			residuals := make([]float64, n)
			for i := range X {
				target := 0.0
				if y[i] == c {
					target = 1.0
				}
				residuals[i] = target - probas[i][c]
			}
			tree := newRegressionTree(m.MaxDepth, 2)
			tree.fitRegression(X, residuals)
			m.Trees[round][c] = tree

			for i, x := range X {
				scores[i][c] += m.LearningRate * tree.predictValueOne(x)
			}
		}
	}
}

func (m *GradientBoosting) predict(X [][]float64) []int {
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

func (m *GradientBoosting) predictProba(X [][]float64) [][]float64 {
	scores := make([][]float64, len(X))
	for i, x := range X {
		score := append([]float64(nil), m.InitScores...)
		for _, round := range m.Trees {
			for c, tree := range round {
				score[c] += m.LearningRate * tree.predictValueOne(x)
			}
		}
		scores[i] = score
	}
	return softmaxRows(scores)
}

// featureImportances averages impurity-decrease importances across every
// boosted tree.
func (m *GradientBoosting) featureImportances() []float64 {
	if len(m.Trees) == 0 || len(m.Trees[0]) == 0 {
		return nil
	}
	importance := make([]float64, m.Trees[0][0].NumFeatures)
	total := 0
	for _, round := range m.Trees {
		for _, tree := range round {
			for f, v := range tree.Importance {
				importance[f] += v
			}
			total++
		}
	}
	for f := range importance {
		importance[f] /= float64(total)
	}
	normalizeImportance(importance)
	return importance
}

func softmaxRows(scores [][]float64) [][]float64 {
	probas := make([][]float64, len(scores))
	for i, row := range scores {
		maxScore := math.Inf(-1)
		for _, z := range row {
			if z > maxScore {
				maxScore = z
			}
		}
		out := make([]float64, len(row))
		sum := 0.0
		for c, z := range row {
			out[c] = math.Exp(z - maxScore)
			sum += out[c]
		}
		for c := range out {
			out[c] /= sum
		}
		probas[i] = out
	}
	return probas
}
