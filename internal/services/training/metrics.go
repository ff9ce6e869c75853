package training

import "sort"

// EvaluationReport is the metrics block written into the job result.
type EvaluationReport struct {
	Accuracy           float64            `json:"accuracy"`
	Precision          float64            `json:"precision"`
	Recall             float64            `json:"recall"`
	F1                 float64            `json:"f1"`
	ROCAUC             *float64           `json:"roc_auc,omitempty"`
	ConfusionMatrix    [][]int            `json:"confusion_matrix"`
	FeatureImportances map[string]float64 `json:"feature_importances,omitempty"`
	Classes            []string           `json:"classes"`
	TrainRows          int                `json:"train_rows"`
	TestRows           int                `json:"test_rows"`
}

// evaluate computes weighted accuracy, precision, recall and F1 with
// zero-division treated as 0, plus the confusion matrix.
func evaluate(yTrue, yPred []int, classes int) (accuracy, precision, recall, f1 float64, confusion [][]int) {
	confusion = make([][]int, classes)
	for i := range confusion {
		confusion[i] = make([]int, classes)
	}
	correct := 0
	for i, truth := range yTrue {
		confusion[truth][yPred[i]]++
		if truth == yPred[i] {
			correct++
		}
	}
	total := float64(len(yTrue))
	if total == 0 {
		return 0, 0, 0, 0, confusion
	}
	accuracy = float64(correct) / total

	for c := 0; c < classes; c++ {
		support := 0
		for p := 0; p < classes; p++ {
			support += confusion[c][p]
		}
		if support == 0 {
			continue
		}
		tp := float64(confusion[c][c])
		predicted := 0.0
		for truth := 0; truth < classes; truth++ {
			predicted += float64(confusion[truth][c])
		}

		var classPrecision, classRecall, classF1 float64
		if predicted > 0 {
			classPrecision = tp / predicted
		}
		classRecall = tp / float64(support)
		if classPrecision+classRecall > 0 {
			classF1 = 2 * classPrecision * classRecall / (classPrecision + classRecall)
		}

		weight := float64(support) / total
		precision += weight * classPrecision
		recall += weight * classRecall
		f1 += weight * classF1
	}
	return accuracy, precision, recall, f1, confusion
}

// rocAUC computes the binary area under the ROC curve from positive-class
// probabilities, using the rank-sum formulation. Ties share ranks.
func rocAUC(yTrue []int, positiveProba []float64) float64 {
	type scored struct {
		proba    float64
		positive bool
	}
	items := make([]scored, len(yTrue))
	positives, negatives := 0, 0
	for i, label := range yTrue {
		items[i] = scored{proba: positiveProba[i], positive: label == 1}
		if label == 1 {
			positives++
		} else {
			negatives++
		}
	}
	if positives == 0 || negatives == 0 {
		return 0
	}
	sort.Slice(items, func(i, j int) bool { return items[i].proba < items[j].proba })

	rankSum := 0.0
	i := 0
	for i < len(items) {
		j := i
		for j < len(items) && items[j].proba == items[i].proba {
			j++
		}
		// ranks are 1-based; tied scores share the mean rank
		meanRank := float64(i+1+j) / 2
		for k := i; k < j; k++ {
			if items[k].positive {
				rankSum += meanRank
			}
		}
		i = j
	}
	p := float64(positives)
	n := float64(negatives)
	return (rankSum - p*(p+1)/2) / (p * n)
}
