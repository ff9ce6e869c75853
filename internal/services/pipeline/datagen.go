package pipeline

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"os"
	"strings"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/models"
)

const syntheticRows = 2000

// regions feeds the one categorical column of every synthetic dataset.
var regions = []string{"north", "south", "east", "west"}

// generateSyntheticCSV writes a deterministic synthetic dataset for one
// use case. The label is a noisy function of the numeric features so the
// training stages have signal to find. Seeded by the use-case key, so
// repeated runs produce byte-identical files.
func generateSyntheticCSV(uc *models.UseCase, path string) error {
	seed := fnv.New64a()
	seed.Write([]byte(uc.Key))
	rng := rand.New(rand.NewSource(int64(seed.Sum64())))

	var b strings.Builder
	fmt.Fprintf(&b, "amount,balance,tenure_months,utilization,txn_count,region,%s\n", uc.TargetColumn)

	for i := 0; i < syntheticRows; i++ {
		amount := rng.Float64() * 5000
		balance := rng.Float64() * 40000
		tenure := rng.Intn(240)
		utilization := rng.Float64()
		txnCount := rng.Intn(120)

		// risk rises with amount and utilization, falls with tenure
		risk := amount/5000*0.5 + utilization*0.4 - float64(tenure)/240*0.3 + rng.NormFloat64()*0.1
		label := 0
		if risk > 0.35 {
			label = 1
		}

		fmt.Fprintf(&b, "%.2f,%.2f,%d,%.4f,%d,%s,%d\n",
			amount, balance, tenure, utilization, txnCount,
			regions[rng.Intn(len(regions))], label)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return apperr.Wrap(err, apperr.KindData, "failed to write synthetic dataset")
	}
	return nil
}
