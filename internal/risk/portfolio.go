package risk

import (
	"math"
	"time"

	"github.com/Veraticus/creditflow-etl/internal/model"
)

// Summarize aggregates loan positions and fraud alert states into portfolio metrics.
func (b *Bucketer) Summarize(loans []model.LoanPosition, alerts []model.AlertState) *model.Portfolio {
	p := &model.Portfolio{
		BucketDistribution: make(map[string]int, len(b.labels)),
		ExposureByBucket:   make(map[string]float64, len(b.labels)),
		AlertsByLevel:      make(map[string]int),
		AlertsByStatus:     make(map[string]int),
	}
	for _, label := range b.labels {
		p.BucketDistribution[label] = 0
		p.ExposureByBucket[label] = 0
	}

	var pdSum float64
	for _, l := range loans {
		if l.WrittenOffFlag {
			continue
		}
		bucket := b.Bucket(l.DaysPastDue)
		p.LoanCount++
		p.BucketDistribution[bucket]++
		p.ExposureByBucket[bucket] += l.CurrentBalance
		p.TotalExposure += l.CurrentBalance
		p.ExpectedLoss += l.ExpectedLoss
		pdSum += l.PD
		if l.NPAFlag || b.IsNPA(l.DaysPastDue) {
			p.NPACount++
		}
	}
	if p.LoanCount > 0 {
		p.AveragePD = round(pdSum/float64(p.LoanCount), 4)
		p.NPARatio = round(float64(p.NPACount)/float64(p.LoanCount), 4)
	}
	p.TotalExposure = round(p.TotalExposure, 2)
	p.ExpectedLoss = round(p.ExpectedLoss, 2)

	for _, a := range alerts {
		p.AlertCount++
		p.AlertsByLevel[a.RiskLevel]++
		p.AlertsByStatus[string(a.Status)]++
		if a.Status == model.StatusConfirmed {
			p.ConfirmedImpact += a.FinancialImpact
		}
	}
	p.ConfirmedImpact = round(p.ConfirmedImpact, 2)

	return p
}

// Snapshots builds one daily snapshot row per loan position.
func (b *Bucketer) Snapshots(loans []model.LoanPosition, day time.Time) []model.LoanSnapshotRow {
	dateSK := model.DateSK(day)
	rows := make([]model.LoanSnapshotRow, 0, len(loans))
	for _, l := range loans {
		rows = append(rows, model.LoanSnapshotRow{
			LoanSK:         l.LoanSK,
			SnapshotDateSK: dateSK,
			CurrentBalance: l.CurrentBalance,
			OverdueAmount:  l.OverdueAmount,
			DaysPastDue:    l.DaysPastDue,
			DPDBucket:      b.Bucket(l.DaysPastDue),
			NPAFlag:        l.NPAFlag || b.IsNPA(l.DaysPastDue),
			ExpectedLoss:   l.ExpectedLoss,
			LoanStatus:     l.LoanStatus,
		})
	}
	return rows
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
