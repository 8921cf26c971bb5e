// Package risk classifies loan delinquency and aggregates portfolio credit and fraud metrics.
package risk

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/Veraticus/creditflow-etl/internal/model"
)

// Bucketer assigns days-past-due to delinquency buckets.
type Bucketer struct {
	labels       []string
	bounds       []int
	npaThreshold int
}

// NewBucketer builds a bucketer for strictly ascending upper bounds. Bounds 30, 60, 90
// yield buckets "0", "1-30", "31-60", "61-90" and "90+".
func NewBucketer(bounds []int, npaThreshold int) (*Bucketer, error) {
	if len(bounds) == 0 {
		return nil, errors.New("at least one bucket bound is required")
	}
	if bounds[0] <= 0 {
		return nil, fmt.Errorf("bucket bounds must be positive and ascending: %v", bounds)
	}
	for i := 1; i < len(bounds); i++ {
		if bounds[i] <= bounds[i-1] {
			return nil, fmt.Errorf("bucket bounds must be positive and ascending: %v", bounds)
		}
	}
	if npaThreshold <= 0 {
		return nil, fmt.Errorf("npa threshold must be positive: %d", npaThreshold)
	}

	labels := make([]string, 0, len(bounds)+2)
	labels = append(labels, "0")
	lower := 1
	for _, upper := range bounds {
		labels = append(labels, fmt.Sprintf("%d-%d", lower, upper))
		lower = upper + 1
	}
	labels = append(labels, fmt.Sprintf("%d+", bounds[len(bounds)-1]))

	return &Bucketer{
		bounds:       slices.Clone(bounds),
		labels:       labels,
		npaThreshold: npaThreshold,
	}, nil
}

// DefaultBucketer uses the regulatory 30/60/90 buckets and the 90 day NPA rule.
func DefaultBucketer() *Bucketer {
	b, _ := NewBucketer([]int{30, 60, 90}, 90)
	return b
}

// Bucket returns the label for a DPD value. Negative values count as current.
func (b *Bucketer) Bucket(dpd int) string {
	if dpd <= 0 {
		return b.labels[0]
	}
	for i, upper := range b.bounds {
		if dpd <= upper {
			return b.labels[i+1]
		}
	}
	return b.labels[len(b.labels)-1]
}

// Labels lists every bucket label in order.
func (b *Bucketer) Labels() []string {
	return slices.Clone(b.labels)
}

// IsNPA reports whether a loan is non-performing: DPD strictly above the threshold.
func (b *Bucketer) IsNPA(dpd int) bool {
	return dpd > b.npaThreshold
}

// LevelForScore maps a 1-100 fraud risk score to its level.
func LevelForScore(score int) string {
	switch {
	case score >= 80:
		return model.RiskCritical
	case score >= 60:
		return model.RiskHigh
	case score >= 40:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

// ExpectedLoss is PD x LGD x EAD rounded to the paisa.
func ExpectedLoss(pd, lgd, ead float64) float64 {
	return math.Round(pd*lgd*ead*100) / 100
}
