package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/campusfee/campusfee-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// FeeLedgerRepository implements domain.FeeLedgerRepository using PostgreSQL.
// The structured parts of a ledger (fee structure, discounts, late fees,
// installments, payment log) live in jsonb columns; the derived totals are
// mirrored into numeric columns so the dashboard aggregates stay in SQL.
type FeeLedgerRepository struct {
	pool *pgxpool.Pool
}

// NewFeeLedgerRepository creates a new FeeLedgerRepository
func NewFeeLedgerRepository(pool *pgxpool.Pool) *FeeLedgerRepository {
	return &FeeLedgerRepository{pool: pool}
}

const feeLedgerColumns = `id, school_id, student_id, class_id, academic_year,
	fee_structure, discounts, late_fees,
	total_amount, paid_amount, due_amount,
	installments, payments,
	status, remarks, is_active, version, created_at, updated_at`

// Create inserts a new ledger and returns it with its generated identity
func (r *FeeLedgerRepository) Create(ledger *domain.FeeLedger) (*domain.FeeLedger, error) {
	ctx := context.Background()

	if ledger.ID == uuid.Nil {
		ledger.ID = uuid.New()
	}

	cols, err := marshalLedgerColumns(ledger)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO fee_ledgers (
			id, school_id, student_id, class_id, academic_year,
			fee_structure, discounts, late_fees,
			total_amount, paid_amount, due_amount,
			installments, payments,
			status, remarks, is_active, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 1, now(), now())
		RETURNING `+feeLedgerColumns,
		ledger.ID, ledger.SchoolID, ledger.StudentID, ledger.ClassID, ledger.AcademicYear,
		cols.feeStructure, cols.discounts, cols.lateFees,
		cols.totalAmount, cols.paidAmount, cols.dueAmount,
		cols.installments, cols.payments,
		string(ledger.Status), ledger.Remarks, ledger.IsActive,
	)
	return scanFeeLedger(row)
}

// GetByID retrieves a ledger by its ID within a school
func (r *FeeLedgerRepository) GetByID(schoolID, id uuid.UUID) (*domain.FeeLedger, error) {
	ctx := context.Background()
	row := r.pool.QueryRow(ctx, `
		SELECT `+feeLedgerColumns+`
		FROM fee_ledgers
		WHERE id = $1 AND school_id = $2`,
		id, schoolID,
	)
	ledger, err := scanFeeLedger(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrLedgerNotFound
		}
		return nil, err
	}
	return ledger, nil
}

// List retrieves ledgers for a school with optional filters, newest first,
// alongside the unpaginated count
func (r *FeeLedgerRepository) List(schoolID uuid.UUID, filter domain.LedgerFilter) ([]*domain.FeeLedger, int64, error) {
	ctx := context.Background()

	where := "WHERE school_id = $1"
	args := []interface{}{schoolID}

	if filter.StudentID != nil {
		args = append(args, *filter.StudentID)
		where += fmt.Sprintf(" AND student_id = $%d", len(args))
	}
	if filter.ClassID != nil {
		args = append(args, *filter.ClassID)
		where += fmt.Sprintf(" AND class_id = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.AcademicYear != "" {
		args = append(args, filter.AcademicYear)
		where += fmt.Sprintf(" AND academic_year = $%d", len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT count(*) FROM fee_ledgers "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit < 1 {
		limit = 25
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(`
		SELECT %s
		FROM fee_ledgers
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		feeLedgerColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	ledgers, err := collectFeeLedgers(rows)
	if err != nil {
		return nil, 0, err
	}
	return ledgers, total, nil
}

// ListByStudent retrieves a student's ledgers, optionally narrowed to one
// academic year, newest first
func (r *FeeLedgerRepository) ListByStudent(schoolID, studentID uuid.UUID, academicYear string) ([]*domain.FeeLedger, error) {
	ctx := context.Background()

	query := `
		SELECT ` + feeLedgerColumns + `
		FROM fee_ledgers
		WHERE school_id = $1 AND student_id = $2`
	args := []interface{}{schoolID, studentID}
	if academicYear != "" {
		args = append(args, academicYear)
		query += " AND academic_year = $3"
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectFeeLedgers(rows)
}

// Update persists the ledger only if its version matches the stored row and
// increments the version. A mismatch returns ErrVersionConflict so the caller
// can re-read and retry.
func (r *FeeLedgerRepository) Update(ledger *domain.FeeLedger) (*domain.FeeLedger, error) {
	ctx := context.Background()

	cols, err := marshalLedgerColumns(ledger)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE fee_ledgers SET
			fee_structure = $4,
			discounts = $5,
			late_fees = $6,
			total_amount = $7,
			paid_amount = $8,
			due_amount = $9,
			installments = $10,
			payments = $11,
			status = $12,
			remarks = $13,
			is_active = $14,
			version = version + 1,
			updated_at = now()
		WHERE id = $1 AND school_id = $2 AND version = $3
		RETURNING `+feeLedgerColumns,
		ledger.ID, ledger.SchoolID, ledger.Version,
		cols.feeStructure, cols.discounts, cols.lateFees,
		cols.totalAmount, cols.paidAmount, cols.dueAmount,
		cols.installments, cols.payments,
		string(ledger.Status), ledger.Remarks, ledger.IsActive,
	)
	updated, err := scanFeeLedger(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			// Row missing or version stale; disambiguate for the caller.
			exists, existsErr := r.exists(ctx, ledger.SchoolID, ledger.ID)
			if existsErr != nil {
				return nil, existsErr
			}
			if exists {
				return nil, domain.ErrVersionConflict
			}
			return nil, domain.ErrLedgerNotFound
		}
		return nil, err
	}
	return updated, nil
}

// Delete removes a ledger within a school
func (r *FeeLedgerRepository) Delete(schoolID, id uuid.UUID) error {
	ctx := context.Background()
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM fee_ledgers
		WHERE id = $1 AND school_id = $2`,
		id, schoolID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLedgerNotFound
	}
	return nil
}

// ListAccrualCandidates returns ledgers, across all schools, that have at
// least one unpaid installment due before asOf. The grace-period check happens
// in the accrual service; this only narrows the sweep.
func (r *FeeLedgerRepository) ListAccrualCandidates(asOf time.Time) ([]*domain.FeeLedger, error) {
	ctx := context.Background()
	rows, err := r.pool.Query(ctx, `
		SELECT `+feeLedgerColumns+`
		FROM fee_ledgers
		WHERE is_active = true
		  AND status NOT IN ('paid', 'waived')
		  AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(installments) AS inst
			WHERE inst->>'status' <> 'paid'
			  AND (inst->>'dueDate')::timestamptz < $1
		  )`,
		asOf,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectFeeLedgers(rows)
}

// StatusSummary aggregates ledger counts and amounts per status for a school
func (r *FeeLedgerRepository) StatusSummary(schoolID uuid.UUID, academicYear string) ([]domain.StatusSummaryRow, error) {
	ctx := context.Background()

	query := `
		SELECT status, count(*), coalesce(sum(total_amount), 0), coalesce(sum(paid_amount), 0), coalesce(sum(due_amount), 0)
		FROM fee_ledgers
		WHERE school_id = $1 AND is_active = true`
	args := []interface{}{schoolID}
	if academicYear != "" {
		args = append(args, academicYear)
		query += " AND academic_year = $2"
	}
	query += " GROUP BY status ORDER BY status"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StatusSummaryRow
	for rows.Next() {
		var row domain.StatusSummaryRow
		var status string
		var totalAmount, totalPaid, totalDue pgtype.Numeric
		if err := rows.Scan(&status, &row.Count, &totalAmount, &totalPaid, &totalDue); err != nil {
			return nil, err
		}
		row.Status = domain.LedgerStatus(status)
		row.TotalAmount = pgNumericToDecimal(totalAmount)
		row.TotalPaid = pgNumericToDecimal(totalPaid)
		row.TotalDue = pgNumericToDecimal(totalDue)
		result = append(result, row)
	}
	return result, rows.Err()
}

// MonthlyCollections sums payment-log amounts per calendar month of the
// payment date for a school
func (r *FeeLedgerRepository) MonthlyCollections(schoolID uuid.UUID, academicYear string) ([]domain.MonthlyCollectionRow, error) {
	ctx := context.Background()

	query := `
		SELECT
			extract(year from (p->>'paymentDate')::timestamptz)::int AS year,
			extract(month from (p->>'paymentDate')::timestamptz)::int AS month,
			coalesce(sum((p->>'amount')::numeric), 0)
		FROM fee_ledgers, jsonb_array_elements(payments) AS p
		WHERE school_id = $1`
	args := []interface{}{schoolID}
	if academicYear != "" {
		args = append(args, academicYear)
		query += " AND academic_year = $2"
	}
	query += " GROUP BY 1, 2 ORDER BY 1, 2"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.MonthlyCollectionRow
	for rows.Next() {
		var row domain.MonthlyCollectionRow
		var amount pgtype.Numeric
		if err := rows.Scan(&row.Year, &row.Month, &amount); err != nil {
			return nil, err
		}
		row.Amount = pgNumericToDecimal(amount)
		result = append(result, row)
	}
	return result, rows.Err()
}

func (r *FeeLedgerRepository) exists(ctx context.Context, schoolID, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM fee_ledgers WHERE id = $1 AND school_id = $2)`,
		id, schoolID,
	).Scan(&exists)
	return exists, err
}

// Helper functions

type ledgerColumns struct {
	feeStructure []byte
	discounts    []byte
	lateFees     []byte
	installments []byte
	payments     []byte
	totalAmount  pgtype.Numeric
	paidAmount   pgtype.Numeric
	dueAmount    pgtype.Numeric
}

func marshalLedgerColumns(ledger *domain.FeeLedger) (*ledgerColumns, error) {
	cols := &ledgerColumns{}

	var err error
	if cols.feeStructure, err = json.Marshal(ledger.FeeStructure); err != nil {
		return nil, fmt.Errorf("marshal fee structure: %w", err)
	}
	if cols.discounts, err = json.Marshal(ledger.Discounts); err != nil {
		return nil, fmt.Errorf("marshal discounts: %w", err)
	}
	if cols.lateFees, err = json.Marshal(ledger.LateFees); err != nil {
		return nil, fmt.Errorf("marshal late fees: %w", err)
	}

	installments := ledger.Installments
	if installments == nil {
		installments = []domain.Installment{}
	}
	if cols.installments, err = json.Marshal(installments); err != nil {
		return nil, fmt.Errorf("marshal installments: %w", err)
	}

	payments := ledger.Payments
	if payments == nil {
		payments = []domain.Payment{}
	}
	if cols.payments, err = json.Marshal(payments); err != nil {
		return nil, fmt.Errorf("marshal payments: %w", err)
	}

	if cols.totalAmount, err = decimalToPgNumeric(ledger.TotalAmount); err != nil {
		return nil, fmt.Errorf("invalid total amount: %w", err)
	}
	if cols.paidAmount, err = decimalToPgNumeric(ledger.PaidAmount); err != nil {
		return nil, fmt.Errorf("invalid paid amount: %w", err)
	}
	if cols.dueAmount, err = decimalToPgNumeric(ledger.DueAmount); err != nil {
		return nil, fmt.Errorf("invalid due amount: %w", err)
	}

	return cols, nil
}

func scanFeeLedger(row pgx.Row) (*domain.FeeLedger, error) {
	ledger := &domain.FeeLedger{}
	var (
		feeStructure, discounts, lateFees, installments, payments []byte
		totalAmount, paidAmount, dueAmount                        pgtype.Numeric
		status                                                    string
		createdAt, updatedAt                                      pgtype.Timestamptz
	)

	err := row.Scan(
		&ledger.ID, &ledger.SchoolID, &ledger.StudentID, &ledger.ClassID, &ledger.AcademicYear,
		&feeStructure, &discounts, &lateFees,
		&totalAmount, &paidAmount, &dueAmount,
		&installments, &payments,
		&status, &ledger.Remarks, &ledger.IsActive, &ledger.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(feeStructure, &ledger.FeeStructure); err != nil {
		return nil, fmt.Errorf("unmarshal fee structure: %w", err)
	}
	if err := json.Unmarshal(discounts, &ledger.Discounts); err != nil {
		return nil, fmt.Errorf("unmarshal discounts: %w", err)
	}
	if err := json.Unmarshal(lateFees, &ledger.LateFees); err != nil {
		return nil, fmt.Errorf("unmarshal late fees: %w", err)
	}
	if err := json.Unmarshal(installments, &ledger.Installments); err != nil {
		return nil, fmt.Errorf("unmarshal installments: %w", err)
	}
	if err := json.Unmarshal(payments, &ledger.Payments); err != nil {
		return nil, fmt.Errorf("unmarshal payments: %w", err)
	}

	ledger.TotalAmount = pgNumericToDecimal(totalAmount)
	ledger.PaidAmount = pgNumericToDecimal(paidAmount)
	ledger.DueAmount = pgNumericToDecimal(dueAmount)
	ledger.Status = domain.LedgerStatus(status)
	ledger.CreatedAt = createdAt.Time
	ledger.UpdatedAt = updatedAt.Time

	return ledger, nil
}

func collectFeeLedgers(rows pgx.Rows) ([]*domain.FeeLedger, error) {
	var result []*domain.FeeLedger
	for rows.Next() {
		ledger, err := scanFeeLedger(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ledger)
	}
	return result, rows.Err()
}

func decimalToPgNumeric(d decimal.Decimal) (pgtype.Numeric, error) {
	var num pgtype.Numeric
	if err := num.Scan(d.String()); err != nil {
		return pgtype.Numeric{}, err
	}
	return num, nil
}

func pgNumericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	if n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
