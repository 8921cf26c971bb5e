package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veraticus/creditflow-etl/internal/model"
)

// keyQueries select natural key and surrogate key per dimension. Customer
// keys come from open versions, ordered so the newest wins on corruption.
var keyQueries = map[model.Dimension]string{
	model.DimDate:        `SELECT full_date, date_sk FROM dim_date`,
	model.DimBranch:      `SELECT branch_id, branch_sk FROM dim_branch`,
	model.DimProduct:     `SELECT product_id, product_sk FROM dim_product`,
	model.DimCustomer:    `SELECT customer_id, customer_sk FROM dim_customer WHERE is_current = 1 ORDER BY customer_sk`,
	model.DimLoan:        `SELECT loan_id, loan_sk FROM fact_loan`,
	model.DimTransaction: `SELECT transaction_id, transaction_sk FROM fact_transaction`,
	model.DimFraudAlert:  `SELECT alert_id, alert_sk FROM fact_fraud_alert`,
}

// LoadKeys returns every natural key to surrogate key pair of a dimension.
// Date natural keys are formatted as YYYY-MM-DD.
func (w *Warehouse) LoadKeys(ctx context.Context, dim model.Dimension) (map[string]int64, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	query, ok := keyQueries[dim]
	if !ok {
		return nil, fmt.Errorf("%w: unknown dimension %q", ErrInvalidRow, dim)
	}

	rows, err := w.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrap("load "+string(dim)+" keys", err)
	}
	defer func() { _ = rows.Close() }()

	keys := make(map[string]int64)
	for rows.Next() {
		var (
			natural string
			sk      int64
		)
		if err := rows.Scan(&natural, &sk); err != nil {
			return nil, fmt.Errorf("failed to scan %s key: %w", dim, err)
		}
		if dim == model.DimDate {
			t, parseErr := parseDate(natural)
			if parseErr != nil {
				return nil, parseErr
			}
			natural = formatDate(t)
		}
		keys[natural] = sk
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("load "+string(dim)+" keys", err)
	}
	return keys, nil
}

const customerColumns = `customer_id, first_name, last_name, date_of_birth, age, gender,
	marital_status, education, employment_type, annual_income, income_tier,
	credit_score, credit_tier, city, state, pincode, address_line1, address_line2,
	phone, email, customer_segment, customer_value_tier, acquisition_date,
	acquisition_channel, effective_start_date, effective_end_date, is_current`

// CurrentCustomers returns every open customer version. A customer_id may
// appear more than once if the dimension is corrupt.
func (w *Warehouse) CurrentCustomers(ctx context.Context) ([]model.CustomerDimensionRow, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := w.db.QueryContext(ctx, `SELECT customer_sk, `+customerColumns+`
		FROM dim_customer WHERE is_current = 1 ORDER BY customer_sk`)
	if err != nil {
		return nil, wrap("load current customers", err)
	}
	defer func() { _ = rows.Close() }()

	var customers []model.CustomerDimensionRow
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("load current customers", err)
	}
	return customers, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(s rowScanner) (model.CustomerDimensionRow, error) {
	var (
		row                                model.CustomerDimensionRow
		dob, acquired, start, end          sql.NullString
		gender, marital, education         sql.NullString
		employment, incomeTier, creditTier sql.NullString
		city, state, pincode, addr1, addr2 sql.NullString
		phone, email, segment, valueTier   sql.NullString
		channel                            sql.NullString
		age, score                         sql.NullInt64
		income                             sql.NullFloat64
	)

	err := s.Scan(&row.CustomerSK, &row.CustomerID, &row.FirstName, &row.LastName, &dob, &age, &gender,
		&marital, &education, &employment, &income, &incomeTier,
		&score, &creditTier, &city, &state, &pincode, &addr1, &addr2,
		&phone, &email, &segment, &valueTier, &acquired,
		&channel, &start, &end, &row.IsCurrent)
	if err != nil {
		return row, fmt.Errorf("failed to scan customer: %w", err)
	}

	if row.DateOfBirth, err = scanDate(dob); err != nil {
		return row, err
	}
	if row.AcquisitionDate, err = scanDate(acquired); err != nil {
		return row, err
	}
	if row.EffectiveEnd, err = scanDate(end); err != nil {
		return row, err
	}
	startDate, err := scanDate(start)
	if err != nil {
		return row, err
	}
	if startDate != nil {
		row.EffectiveStart = *startDate
	}

	row.Age = int(age.Int64)
	row.CreditScore = int(score.Int64)
	row.AnnualIncome = income.Float64
	row.Gender = gender.String
	row.MaritalStatus = marital.String
	row.Education = education.String
	row.EmploymentType = employment.String
	row.IncomeTier = incomeTier.String
	row.CreditTier = creditTier.String
	row.City = city.String
	row.State = state.String
	row.Pincode = pincode.String
	row.AddressLine1 = addr1.String
	row.AddressLine2 = addr2.String
	row.Phone = phone.String
	row.Email = email.String
	row.Segment = segment.String
	row.ValueTier = valueTier.String
	row.AcquisitionChannel = channel.String
	return row, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func customerArgs(row *model.CustomerDimensionRow) []any {
	return []any{
		row.CustomerID, row.FirstName, row.LastName, nullDate(row.DateOfBirth), row.Age, nullString(row.Gender),
		nullString(row.MaritalStatus), nullString(row.Education), nullString(row.EmploymentType), row.AnnualIncome,
		nullString(row.IncomeTier), row.CreditScore, nullString(row.CreditTier), nullString(row.City),
		nullString(row.State), nullString(row.Pincode), nullString(row.AddressLine1), nullString(row.AddressLine2),
		nullString(row.Phone), nullString(row.Email), nullString(row.Segment), nullString(row.ValueTier),
		nullDate(row.AcquisitionDate), nullString(row.AcquisitionChannel), formatDate(row.EffectiveStart),
		nullDate(row.EffectiveEnd), row.IsCurrent,
	}
}

// InsertDates adds calendar days, ignoring days already present.
func (t *warehouseTx) InsertDates(ctx context.Context, rows []model.DateDimensionRow) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	stmt, err := t.tx.PrepareContext(ctx, t.w.dialect.insertIgnore+` INTO dim_date (
		date_sk, full_date, day, month, month_name, quarter, year,
		week, weekday, is_weekend, is_holiday, financial_year
	) VALUES (`+placeholders(12)+`)`)
	if err != nil {
		return 0, wrap("prepare date insert", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for _, d := range rows {
		res, err := stmt.ExecContext(ctx, d.DateSK, formatDate(d.FullDate), d.Day, d.Month, d.MonthName,
			d.Quarter, d.Year, d.Week, d.Weekday, d.IsWeekend, d.IsHoliday, d.FinancialYear)
		if err != nil {
			return inserted, wrap(fmt.Sprintf("insert date %d", d.DateSK), err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	return inserted, nil
}

// InsertBranch adds a branch and returns its surrogate key.
func (t *warehouseTx) InsertBranch(ctx context.Context, b *model.Branch) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if b == nil || b.BranchID == "" {
		return 0, fmt.Errorf("%w: branch missing branch_id", ErrInvalidRow)
	}

	res, err := t.tx.ExecContext(ctx, `INSERT INTO dim_branch (
		branch_id, branch_name, city, state, region, branch_type, is_active, created_at
	) VALUES (`+placeholders(8)+`)`,
		b.BranchID, b.BranchName, nullString(b.City), nullString(b.State), nullString(b.Region),
		nullString(b.BranchType), b.IsActive, t.w.timestamp())
	if err != nil {
		return 0, wrap("insert branch "+b.BranchID, err)
	}
	id, err := res.LastInsertId()
	return id, wrap("branch id", err)
}

// InsertProduct adds a product and returns its surrogate key.
func (t *warehouseTx) InsertProduct(ctx context.Context, p *model.Product) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if p == nil || p.ProductID == "" {
		return 0, fmt.Errorf("%w: product missing product_id", ErrInvalidRow)
	}

	res, err := t.tx.ExecContext(ctx, `INSERT INTO dim_product (
		product_id, product_name, product_type, min_amount, max_amount, min_rate, max_rate,
		min_tenure, max_tenure, collateral_required, is_active, created_at
	) VALUES (`+placeholders(12)+`)`,
		p.ProductID, p.ProductName, nullString(p.ProductType), p.MinAmount, p.MaxAmount, p.MinRate, p.MaxRate,
		p.MinTenure, p.MaxTenure, p.CollateralRequired, p.IsActive, t.w.timestamp())
	if err != nil {
		return 0, wrap("insert product "+p.ProductID, err)
	}
	id, err := res.LastInsertId()
	return id, wrap("product id", err)
}

// InsertCustomerVersion adds one customer version and returns its surrogate key.
func (t *warehouseTx) InsertCustomerVersion(ctx context.Context, row *model.CustomerDimensionRow) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateCustomerRow(row); err != nil {
		return 0, err
	}

	now := t.w.timestamp()
	args := append(customerArgs(row), now, now)
	res, err := t.tx.ExecContext(ctx, `INSERT INTO dim_customer (`+customerColumns+`, created_at, updated_at)
		VALUES (`+placeholders(len(args))+`)`, args...)
	if err != nil {
		return 0, wrap("insert customer "+row.CustomerID, err)
	}
	id, err := res.LastInsertId()
	return id, wrap("customer id", err)
}

// CloseCustomerVersion ends an open version as of the given date.
func (t *warehouseTx) CloseCustomerVersion(ctx context.Context, customerSK int64, end time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	res, err := t.tx.ExecContext(ctx, `UPDATE dim_customer
		SET effective_end_date = ?, is_current = 0, updated_at = ?
		WHERE customer_sk = ? AND is_current = 1`,
		formatDate(end), t.w.timestamp(), customerSK)
	if err != nil {
		return wrap(fmt.Sprintf("close customer version %d", customerSK), err)
	}
	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return fmt.Errorf("%w: customer version %d is not open", ErrInvalidRow, customerSK)
	}
	return nil
}

// UpdateCustomerAttributes rewrites the attributes of an existing version in place.
func (t *warehouseTx) UpdateCustomerAttributes(ctx context.Context, row *model.CustomerDimensionRow) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCustomerRow(row); err != nil {
		return err
	}

	_, err := t.tx.ExecContext(ctx, `UPDATE dim_customer SET
		first_name = ?, last_name = ?, date_of_birth = ?, age = ?, gender = ?,
		marital_status = ?, education = ?, employment_type = ?, annual_income = ?, income_tier = ?,
		credit_score = ?, credit_tier = ?, city = ?, state = ?, pincode = ?,
		address_line1 = ?, address_line2 = ?, phone = ?, email = ?, customer_segment = ?,
		customer_value_tier = ?, acquisition_date = ?, acquisition_channel = ?, updated_at = ?
		WHERE customer_sk = ?`,
		row.FirstName, row.LastName, nullDate(row.DateOfBirth), row.Age, nullString(row.Gender),
		nullString(row.MaritalStatus), nullString(row.Education), nullString(row.EmploymentType),
		row.AnnualIncome, nullString(row.IncomeTier),
		row.CreditScore, nullString(row.CreditTier), nullString(row.City), nullString(row.State),
		nullString(row.Pincode),
		nullString(row.AddressLine1), nullString(row.AddressLine2), nullString(row.Phone),
		nullString(row.Email), nullString(row.Segment),
		nullString(row.ValueTier), nullDate(row.AcquisitionDate), nullString(row.AcquisitionChannel),
		t.w.timestamp(), row.CustomerSK)
	return wrap(fmt.Sprintf("update customer %d", row.CustomerSK), err)
}
