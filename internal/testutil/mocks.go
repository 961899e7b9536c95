package testutil

import (
	"sort"
	"sync"
	"time"

	"github.com/campusfee/campusfee-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockFeeLedgerRepository is an in-memory implementation of
// domain.FeeLedgerRepository. It honors the optimistic version check the same
// way the postgres repository does, and hands out copies so callers mutate
// their own snapshot, not the stored row.
type MockFeeLedgerRepository struct {
	mu      sync.Mutex
	Ledgers map[uuid.UUID]*domain.FeeLedger

	UpdateFn func(ledger *domain.FeeLedger) (*domain.FeeLedger, error)
}

// NewMockFeeLedgerRepository creates a new MockFeeLedgerRepository
func NewMockFeeLedgerRepository() *MockFeeLedgerRepository {
	return &MockFeeLedgerRepository{
		Ledgers: make(map[uuid.UUID]*domain.FeeLedger),
	}
}

// Create inserts a new ledger
func (m *MockFeeLedgerRepository) Create(ledger *domain.FeeLedger) (*domain.FeeLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := CopyLedger(ledger)
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.Version = 1
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	m.Ledgers[stored.ID] = stored
	return CopyLedger(stored), nil
}

// GetByID retrieves a ledger by ID within a school
func (m *MockFeeLedgerRepository) GetByID(schoolID, id uuid.UUID) (*domain.FeeLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ledger, ok := m.Ledgers[id]
	if !ok || ledger.SchoolID != schoolID {
		return nil, domain.ErrLedgerNotFound
	}
	return CopyLedger(ledger), nil
}

// List retrieves ledgers matching the filter, newest first
func (m *MockFeeLedgerRepository) List(schoolID uuid.UUID, filter domain.LedgerFilter) ([]*domain.FeeLedger, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*domain.FeeLedger
	for _, l := range m.Ledgers {
		if l.SchoolID != schoolID {
			continue
		}
		if filter.StudentID != nil && l.StudentID != *filter.StudentID {
			continue
		}
		if filter.ClassID != nil && l.ClassID != *filter.ClassID {
			continue
		}
		if filter.Status != nil && l.Status != *filter.Status {
			continue
		}
		if filter.AcademicYear != "" && l.AcademicYear != filter.AcademicYear {
			continue
		}
		matched = append(matched, CopyLedger(l))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	limit := filter.Limit
	if limit < 1 {
		limit = 25
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

// ListByStudent retrieves a student's ledgers, optionally by academic year
func (m *MockFeeLedgerRepository) ListByStudent(schoolID, studentID uuid.UUID, academicYear string) ([]*domain.FeeLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*domain.FeeLedger
	for _, l := range m.Ledgers {
		if l.SchoolID != schoolID || l.StudentID != studentID {
			continue
		}
		if academicYear != "" && l.AcademicYear != academicYear {
			continue
		}
		matched = append(matched, CopyLedger(l))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched, nil
}

// Update persists the ledger only if its version matches the stored row
func (m *MockFeeLedgerRepository) Update(ledger *domain.FeeLedger) (*domain.FeeLedger, error) {
	if m.UpdateFn != nil {
		return m.UpdateFn(ledger)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.Ledgers[ledger.ID]
	if !ok || stored.SchoolID != ledger.SchoolID {
		return nil, domain.ErrLedgerNotFound
	}
	if stored.Version != ledger.Version {
		return nil, domain.ErrVersionConflict
	}

	next := CopyLedger(ledger)
	next.Version = stored.Version + 1
	next.CreatedAt = stored.CreatedAt
	next.UpdatedAt = time.Now()
	m.Ledgers[next.ID] = next
	return CopyLedger(next), nil
}

// Delete removes a ledger within a school
func (m *MockFeeLedgerRepository) Delete(schoolID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ledger, ok := m.Ledgers[id]
	if !ok || ledger.SchoolID != schoolID {
		return domain.ErrLedgerNotFound
	}
	delete(m.Ledgers, id)
	return nil
}

// ListAccrualCandidates returns ledgers with an unpaid installment due before asOf
func (m *MockFeeLedgerRepository) ListAccrualCandidates(asOf time.Time) ([]*domain.FeeLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*domain.FeeLedger
	for _, l := range m.Ledgers {
		if !l.IsActive || l.Status == domain.LedgerStatusPaid || l.Status == domain.LedgerStatusWaived {
			continue
		}
		for _, inst := range l.Installments {
			if inst.Status != domain.InstallmentStatusPaid && inst.DueDate.Before(asOf) {
				matched = append(matched, CopyLedger(l))
				break
			}
		}
	}
	return matched, nil
}

// StatusSummary aggregates ledger counts and amounts per status
func (m *MockFeeLedgerRepository) StatusSummary(schoolID uuid.UUID, academicYear string) ([]domain.StatusSummaryRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byStatus := make(map[domain.LedgerStatus]*domain.StatusSummaryRow)
	for _, l := range m.Ledgers {
		if l.SchoolID != schoolID || !l.IsActive {
			continue
		}
		if academicYear != "" && l.AcademicYear != academicYear {
			continue
		}
		row, ok := byStatus[l.Status]
		if !ok {
			row = &domain.StatusSummaryRow{
				Status:      l.Status,
				TotalAmount: decimal.Zero,
				TotalPaid:   decimal.Zero,
				TotalDue:    decimal.Zero,
			}
			byStatus[l.Status] = row
		}
		row.Count++
		row.TotalAmount = row.TotalAmount.Add(l.TotalAmount)
		row.TotalPaid = row.TotalPaid.Add(l.PaidAmount)
		row.TotalDue = row.TotalDue.Add(l.DueAmount)
	}

	var result []domain.StatusSummaryRow
	for _, row := range byStatus {
		result = append(result, *row)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Status < result[j].Status })
	return result, nil
}

// MonthlyCollections sums payment amounts per calendar month
func (m *MockFeeLedgerRepository) MonthlyCollections(schoolID uuid.UUID, academicYear string) ([]domain.MonthlyCollectionRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type yearMonth struct {
		year  int
		month int
	}
	byMonth := make(map[yearMonth]decimal.Decimal)
	for _, l := range m.Ledgers {
		if l.SchoolID != schoolID {
			continue
		}
		if academicYear != "" && l.AcademicYear != academicYear {
			continue
		}
		for _, p := range l.Payments {
			key := yearMonth{p.PaymentDate.Year(), int(p.PaymentDate.Month())}
			byMonth[key] = byMonth[key].Add(p.Amount)
		}
	}

	var result []domain.MonthlyCollectionRow
	for key, amount := range byMonth {
		result = append(result, domain.MonthlyCollectionRow{Year: key.year, Month: key.month, Amount: amount})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Year != result[j].Year {
			return result[i].Year < result[j].Year
		}
		return result[i].Month < result[j].Month
	})
	return result, nil
}

// AddLedger seeds a ledger directly into the store (helper for tests)
func (m *MockFeeLedgerRepository) AddLedger(ledger *domain.FeeLedger) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := CopyLedger(ledger)
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.Version == 0 {
		stored.Version = 1
	}
	m.Ledgers[stored.ID] = stored
}

// CopyLedger returns a deep copy of a ledger
func CopyLedger(l *domain.FeeLedger) *domain.FeeLedger {
	dup := *l
	if l.Installments != nil {
		dup.Installments = make([]domain.Installment, len(l.Installments))
		copy(dup.Installments, l.Installments)
	}
	if l.Payments != nil {
		dup.Payments = make([]domain.Payment, len(l.Payments))
		copy(dup.Payments, l.Payments)
	}
	return &dup
}

// MockStudentDirectory is an in-memory implementation of domain.StudentDirectory
type MockStudentDirectory struct {
	Students map[uuid.UUID]*domain.Student
}

// NewMockStudentDirectory creates a new MockStudentDirectory
func NewMockStudentDirectory() *MockStudentDirectory {
	return &MockStudentDirectory{Students: make(map[uuid.UUID]*domain.Student)}
}

// GetByID retrieves a student by ID within a school
func (m *MockStudentDirectory) GetByID(schoolID, id uuid.UUID) (*domain.Student, error) {
	student, ok := m.Students[id]
	if !ok || student.SchoolID != schoolID {
		return nil, domain.ErrStudentNotFound
	}
	return student, nil
}

// AddStudent adds a student to the directory (helper for tests)
func (m *MockStudentDirectory) AddStudent(student *domain.Student) {
	if student.ID == uuid.Nil {
		student.ID = uuid.New()
	}
	m.Students[student.ID] = student
}

// MockClassDirectory is an in-memory implementation of domain.ClassDirectory
type MockClassDirectory struct {
	Classes map[uuid.UUID]*domain.Class
}

// NewMockClassDirectory creates a new MockClassDirectory
func NewMockClassDirectory() *MockClassDirectory {
	return &MockClassDirectory{Classes: make(map[uuid.UUID]*domain.Class)}
}

// GetByID retrieves a class by ID within a school
func (m *MockClassDirectory) GetByID(schoolID, id uuid.UUID) (*domain.Class, error) {
	class, ok := m.Classes[id]
	if !ok || class.SchoolID != schoolID {
		return nil, domain.ErrClassNotFound
	}
	return class, nil
}

// AddClass adds a class to the directory (helper for tests)
func (m *MockClassDirectory) AddClass(class *domain.Class) {
	if class.ID == uuid.Nil {
		class.ID = uuid.New()
	}
	m.Classes[class.ID] = class
}
