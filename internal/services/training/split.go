package training

import "math/rand"

// randomState fixes the split shuffle for reproducible runs.
const randomState = 42

// trainTestSplit shuffles row indexes with the fixed seed and carves off
// the trailing testSize fraction as the holdout.
func trainTestSplit(X [][]float64, y []int, testSize float64) (trainX, testX [][]float64, trainY, testY []int) {
	n := len(X)
	indexes := make([]int, n)
	for i := range indexes {
		indexes[i] = i
	}
	rng := rand.New(rand.NewSource(randomState))
	rng.Shuffle(n, func(i, j int) { indexes[i], indexes[j] = indexes[j], indexes[i] })

	testCount := int(float64(n) * testSize)
	if testCount < 1 && n > 1 {
		testCount = 1
	}
	trainCount := n - testCount

	for _, i := range indexes[:trainCount] {
		trainX = append(trainX, X[i])
		trainY = append(trainY, y[i])
	}
	for _, i := range indexes[trainCount:] {
		testX = append(testX, X[i])
		testY = append(testY, y[i])
	}
	return trainX, testX, trainY, testY
}
