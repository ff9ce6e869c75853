package training

import "math"

// LogisticRegression is a multinomial softmax classifier trained by
// batch gradient descent on standardized features.
type LogisticRegression struct {
	Weights    [][]float64 // [class][feature]
	Bias       []float64
	Means      []float64
	Stds       []float64
	NumClasses int

	LearningRate float64
	Epochs       int
}

func newLogisticRegression() *LogisticRegression {
	return &LogisticRegression{LearningRate: 0.1, Epochs: 300}
}

func (m *LogisticRegression) fit(X [][]float64, y []int) {
	numFeatures := len(X[0])
	m.NumClasses = numClasses(y)
	m.Means, m.Stds = columnStats(X)
	scaled := m.scale(X)

	m.Weights = make([][]float64, m.NumClasses)
	for c := range m.Weights {
		m.Weights[c] = make([]float64, numFeatures)
	}
	m.Bias = make([]float64, m.NumClasses)

	n := float64(len(scaled))
	for epoch := 0; epoch < m.Epochs; epoch++ {
		gradW := make([][]float64, m.NumClasses)
		for c := range gradW {
			gradW[c] = make([]float64, numFeatures)
		}
		gradB := make([]float64, m.NumClasses)

		for i, x := range scaled {
			proba := m.softmax(x)
			for c := 0; c < m.NumClasses; c++ {
				diff := proba[c]
				if y[i] == c {
					diff -= 1
				}
				for f := range x {
					gradW[c][f] += diff * x[f]
				}
				gradB[c] += diff
			}
		}
		for c := 0; c < m.NumClasses; c++ {
			for f := 0; f < numFeatures; f++ {
				m.Weights[c][f] -= m.LearningRate * gradW[c][f] / n
			}
			m.Bias[c] -= m.LearningRate * gradB[c] / n
		}
	}
}

func (m *LogisticRegression) predict(X [][]float64) []int {
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

func (m *LogisticRegression) predictProba(X [][]float64) [][]float64 {
	scaled := m.scale(X)
	probas := make([][]float64, len(scaled))
	for i, x := range scaled {
		probas[i] = m.softmax(x)
	}
	return probas
}

// featureImportances reports the mean absolute coefficient per feature
// across classes.
func (m *LogisticRegression) featureImportances() []float64 {
	if len(m.Weights) == 0 {
		return nil
	}
	importance := make([]float64, len(m.Weights[0]))
	for _, classWeights := range m.Weights {
		for f, w := range classWeights {
			importance[f] += math.Abs(w)
		}
	}
	for f := range importance {
		importance[f] /= float64(len(m.Weights))
	}
	normalizeImportance(importance)
	return importance
}

func (m *LogisticRegression) softmax(x []float64) []float64 {
	logits := make([]float64, m.NumClasses)
	maxLogit := math.Inf(-1)
	for c := 0; c < m.NumClasses; c++ {
		z := m.Bias[c]
		for f, v := range x {
			z += m.Weights[c][f] * v
		}
		logits[c] = z
		if z > maxLogit {
			maxLogit = z
		}
	}
	sum := 0.0
	for c, z := range logits {
		logits[c] = math.Exp(z - maxLogit)
		sum += logits[c]
	}
	for c := range logits {
		logits[c] /= sum
	}
	return logits
}

func (m *LogisticRegression) scale(X [][]float64) [][]float64 {
	scaled := make([][]float64, len(X))
	for i, row := range X {
		out := make([]float64, len(row))
		for f, v := range row {
			out[f] = (v - m.Means[f]) / m.Stds[f]
		}
		scaled[i] = out
	}
	return scaled
}

func columnStats(X [][]float64) (means, stds []float64) {
	numFeatures := len(X[0])
	means = make([]float64, numFeatures)
	stds = make([]float64, numFeatures)
	n := float64(len(X))
	for _, row := range X {
		for f, v := range row {
			means[f] += v
		}
	}
	for f := range means {
		means[f] /= n
	}
	for _, row := range X {
		for f, v := range row {
			d := v - means[f]
			stds[f] += d * d
		}
	}
	for f := range stds {
		stds[f] = math.Sqrt(stds[f] / n)
		if stds[f] < 1e-12 {
			stds[f] = 1
		}
	}
	return means, stds
}
