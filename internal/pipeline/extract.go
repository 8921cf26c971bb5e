package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/creditflow-etl/internal/loader"
	"github.com/Veraticus/creditflow-etl/internal/model"
	"github.com/Veraticus/creditflow-etl/internal/source"
	"github.com/Veraticus/creditflow-etl/internal/validate"
)

// readBatchSize is the number of raw rows pulled from a reader at a time.
const readBatchSize = 1000

// extract reads every source entity and keeps the rows that validate.
// Rejections go to tracker. It returns the number of raw rows read.
func extract(ctx context.Context, src source.Source, v *validate.Validator,
	tracker *validate.Tracker) (*loader.EntityBatches, int, error) {
	b := &loader.EntityBatches{}
	rowsIn := 0

	for _, entity := range model.SourceEntities {
		raws, err := source.ReadEntity(ctx, src, entity, readBatchSize)
		if err != nil {
			return nil, rowsIn, fmt.Errorf("failed to read %s rows: %w", entity, err)
		}
		rowsIn += len(raws)

		for _, raw := range raws {
			rec, rej := v.Validate(entity, raw)
			if rej != nil {
				tracker.Add(rej.WithRow(raw))
				continue
			}
			switch r := rec.(type) {
			case *model.Branch:
				b.Branches = append(b.Branches, r)
			case *model.Product:
				b.Products = append(b.Products, r)
			case *model.Customer:
				b.Customers = append(b.Customers, r)
			case *model.Loan:
				b.Loans = append(b.Loans, r)
			case *model.Transaction:
				b.Transactions = append(b.Transactions, r)
			case *model.FraudAlert:
				b.FraudAlerts = append(b.FraudAlerts, r)
			}
		}
	}
	return b, rowsIn, nil
}

// dateRows covers the configured range, stretched to include the
// processing date so its snapshots always resolve.
func dateRows(start, end, processingDate time.Time) []model.DateDimensionRow {
	if processingDate.Before(start) {
		start = processingDate
	}
	if processingDate.After(end) {
		end = processingDate
	}
	return model.DateRange(start, end)
}
