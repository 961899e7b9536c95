package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/campusfee/campusfee-backend/internal/domain"
	"github.com/campusfee/campusfee-backend/internal/middleware"
	"github.com/campusfee/campusfee-backend/internal/service"
	"github.com/campusfee/campusfee-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// setupAuthContext injects the authenticated caller the way the auth
// middleware would.
func setupAuthContext(c echo.Context, userID string, schoolID uuid.UUID, role string) {
	ctx := context.WithValue(c.Request().Context(), middleware.UserIDKey, userID)
	ctx = context.WithValue(ctx, middleware.SchoolIDKey, schoolID)
	ctx = context.WithValue(ctx, middleware.RoleKey, role)
	c.SetRequest(c.Request().WithContext(ctx))
}

// feesTestEnv wires mock repositories into the full service stack for
// handler tests.
type feesTestEnv struct {
	repo      *testutil.MockFeeLedgerRepository
	schoolID  uuid.UUID
	studentID uuid.UUID
	classID   uuid.UUID
	ledgers   *service.LedgerService
}

func newFeesTestEnv() *feesTestEnv {
	schoolID := uuid.New()
	studentID := uuid.New()
	classID := uuid.New()

	students := testutil.NewMockStudentDirectory()
	students.AddStudent(&domain.Student{ID: studentID, SchoolID: schoolID, StudentNo: "S-2001", FirstName: "Noor", LastName: "Rahman"})

	classes := testutil.NewMockClassDirectory()
	classes.AddClass(&domain.Class{
		ID:          classID,
		SchoolID:    schoolID,
		Name:        "Grade 8B",
		Level:       "8",
		DefaultFees: domain.FeeStructure{TuitionFee: decimal.NewFromInt(1500)},
	})

	repo := testutil.NewMockFeeLedgerRepository()
	resolver := service.NewStructureResolver(students, classes)
	locks := service.NewLedgerLocks()

	return &feesTestEnv{
		repo:      repo,
		schoolID:  schoolID,
		studentID: studentID,
		classID:   classID,
		ledgers:   service.NewLedgerService(repo, resolver, locks),
	}
}

// addLedger seeds a computed ledger directly through the service.
func (env *feesTestEnv) addLedger(t *testing.T, tuition int64) *domain.FeeLedger {
	t.Helper()
	fs := &domain.FeeStructure{TuitionFee: decimal.NewFromInt(tuition)}
	ledger, err := env.ledgers.CreateLedger(env.schoolID, service.CreateLedgerInput{
		StudentID:    env.studentID,
		ClassID:      env.classID,
		AcademicYear: "2025-2026",
		FeeStructure: fs,
	})
	if err != nil {
		t.Fatalf("Failed to seed ledger: %v", err)
	}
	return ledger
}

func TestCreateLedger_Success(t *testing.T) {
	e := echo.New()
	env := newFeesTestEnv()
	handler := NewLedgerHandler(env.ledgers)

	reqBody := `{
		"student": "` + env.studentID.String() + `",
		"class": "` + env.classID.String() + `",
		"academicYear": "2025-2026",
		"feeStructure": {"tuitionFee": "1000"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fees", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	setupAuthContext(c, "auth0|accountant", env.schoolID, middleware.RoleAccountant)

	err := handler.CreateLedger(c)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if rec.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", rec.Code)
	}

	var response FeeLedgerResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	// Tuition 1000 and nothing else: total 1000, nothing paid, pending.
	if response.TotalAmount != "1000" {
		t.Errorf("Expected total '1000', got %s", response.TotalAmount)
	}
	if response.PaidAmount != "0" {
		t.Errorf("Expected paid '0', got %s", response.PaidAmount)
	}
	if response.DueAmount != "1000" {
		t.Errorf("Expected due '1000', got %s", response.DueAmount)
	}
	if response.Status != "pending" {
		t.Errorf("Expected status 'pending', got %s", response.Status)
	}
}

func TestCreateLedger_ScholarshipDiscount(t *testing.T) {
	e := echo.New()
	env := newFeesTestEnv()
	handler := NewLedgerHandler(env.ledgers)

	reqBody := `{
		"student": "` + env.studentID.String() + `",
		"class": "` + env.classID.String() + `",
		"academicYear": "2025-2026",
		"feeStructure": {"tuitionFee": "1000"},
		"discounts": {"scholarshipPercentage": "20"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fees", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	setupAuthContext(c, "auth0|accountant", env.schoolID, middleware.RoleAccountant)

	if err := handler.CreateLedger(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var response FeeLedgerResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	// 1000 minus 20% scholarship = 800
	if response.TotalAmount != "800" {
		t.Errorf("Expected total '800', got %s", response.TotalAmount)
	}
}

func TestCreateLedger_InvalidStudentID(t *testing.T) {
	e := echo.New()
	env := newFeesTestEnv()
	handler := NewLedgerHandler(env.ledgers)

	reqBody := `{"student": "not-a-uuid", "class": "` + env.classID.String() + `", "academicYear": "2025-2026"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fees", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	setupAuthContext(c, "auth0|accountant", env.schoolID, middleware.RoleAccountant)

	if err := handler.CreateLedger(c); err != nil {
		t.Fatalf("Expected no error (error should be in response), got %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestCreateLedger_BadAcademicYear(t *testing.T) {
	e := echo.New()
	env := newFeesTestEnv()
	handler := NewLedgerHandler(env.ledgers)

	reqBody := `{
		"student": "` + env.studentID.String() + `",
		"class": "` + env.classID.String() + `",
		"academicYear": "25-26"
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fees", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	setupAuthContext(c, "auth0|accountant", env.schoolID, middleware.RoleAccountant)

	if err := handler.CreateLedger(c); err != nil {
		t.Fatalf("Expected no error (error should be in response), got %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}

	var problem ProblemDetails
	if err := json.Unmarshal(rec.Body.Bytes(), &problem); err != nil {
		t.Fatalf("Failed to unmarshal problem: %v", err)
	}
	if len(problem.Errors) != 1 || problem.Errors[0].Field != "academicYear" {
		t.Errorf("Expected academicYear field error, got %+v", problem.Errors)
	}
}

func TestCreateLedger_UnknownStudent(t *testing.T) {
	e := echo.New()
	env := newFeesTestEnv()
	handler := NewLedgerHandler(env.ledgers)

	reqBody := `{
		"student": "` + uuid.New().String() + `",
		"class": "` + env.classID.String() + `",
		"academicYear": "2025-2026"
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fees", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	setupAuthContext(c, "auth0|accountant", env.schoolID, middleware.RoleAccountant)

	if err := handler.CreateLedger(c); err != nil {
		t.Fatalf("Expected no error (error should be in response), got %v", err)
	}

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestGetLedger_Success(t *testing.T) {
	e := echo.New()
	env := newFeesTestEnv()
	handler := NewLedgerHandler(env.ledgers)
	ledger := env.addLedger(t, 1000)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fees/"+ledger.ID.String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(ledger.ID.String())

	setupAuthContext(c, "auth0|teacher", env.schoolID, middleware.RoleTeacher)

	if err := handler.GetLedger(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	var response FeeLedgerResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if response.ID != ledger.ID.String() {
		t.Errorf("Expected ledger %s, got %s", ledger.ID, response.ID)
	}
}

func TestGetLedger_NotFound(t *testing.T) {
	e := echo.New()
	env := newFeesTestEnv()
	handler := NewLedgerHandler(env.ledgers)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fees/"+uuid.New().String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	setupAuthContext(c, "auth0|teacher", env.schoolID, middleware.RoleTeacher)

	if err := handler.GetLedger(c); err != nil {
		t.Fatalf("Expected no error (error should be in response), got %v", err)
	}

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestGetLedger_SchoolIsolation(t *testing.T) {
	e := echo.New()
	env := newFeesTestEnv()
	handler := NewLedgerHandler(env.ledgers)
	ledger := env.addLedger(t, 1000)

	// Caller from another school must not see the ledger.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/fees/"+ledger.ID.String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(ledger.ID.String())

	setupAuthContext(c, "auth0|other", uuid.New(), middleware.RoleAdmin)

	if err := handler.GetLedger(c); err != nil {
		t.Fatalf("Expected no error (error should be in response), got %v", err)
	}

	if rec.Code != http.StatusNotFound {
		t.Errorf("Another school should get 404, got %d", rec.Code)
	}
}

func TestListLedgers_Success(t *testing.T) {
	e := echo.New()
	env := newFeesTestEnv()
	handler := NewLedgerHandler(env.ledgers)
	env.addLedger(t, 1000)
	env.addLedger(t, 500)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fees", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	setupAuthContext(c, "auth0|accountant", env.schoolID, middleware.RoleAccountant)

	if err := handler.ListLedgers(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	var response ListLedgersResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	if response.Total != 2 || len(response.Ledgers) != 2 {
		t.Errorf("Expected 2 ledgers, got %d (total %d)", len(response.Ledgers), response.Total)
	}
	if response.Page != 1 || response.Limit != 25 {
		t.Errorf("Expected default page 1 limit 25, got page %d limit %d", response.Page, response.Limit)
	}
}

func TestListLedgers_StatusFilter(t *testing.T) {
	e := echo.New()
	env := newFeesTestEnv()
	handler := NewLedgerHandler(env.ledgers)
	env.addLedger(t, 1000)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fees?status=paid", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	setupAuthContext(c, "auth0|accountant", env.schoolID, middleware.RoleAccountant)

	if err := handler.ListLedgers(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var response ListLedgersResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	if response.Total != 0 {
		t.Errorf("Expected no paid ledgers, got %d", response.Total)
	}
}

func TestUpdateLedger_Success(t *testing.T) {
	e := echo.New()
	env := newFeesTestEnv()
	handler := NewLedgerHandler(env.ledgers)
	ledger := env.addLedger(t, 1000)

	reqBody := `{"discounts": {"siblingDiscount": "100"}}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/fees/"+ledger.ID.String(), strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(ledger.ID.String())

	setupAuthContext(c, "auth0|admin", env.schoolID, middleware.RoleAdmin)

	if err := handler.UpdateLedger(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	var response FeeLedgerResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	if response.TotalAmount != "900" {
		t.Errorf("Expected total '900' after discount, got %s", response.TotalAmount)
	}
}

func TestUpdateLedger_LateFeePolicy(t *testing.T) {
	e := echo.New()
	env := newFeesTestEnv()
	handler := NewLedgerHandler(env.ledgers)
	ledger := env.addLedger(t, 1000)

	reqBody := `{"lateFeePercentage": "2.5", "gracePeriodDays": 14}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/fees/"+ledger.ID.String(), strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(ledger.ID.String())

	setupAuthContext(c, "auth0|admin", env.schoolID, middleware.RoleAdmin)

	if err := handler.UpdateLedger(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	var response FeeLedgerResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	if !response.LateFees.LateFeePercentage.Equal(decimal.NewFromFloat(2.5)) {
		t.Errorf("Expected late fee percentage 2.5, got %s", response.LateFees.LateFeePercentage)
	}
	if response.LateFees.GracePeriodDays != 14 {
		t.Errorf("Expected grace period 14, got %d", response.LateFees.GracePeriodDays)
	}
}

func TestWaiveLedger_Success(t *testing.T) {
	e := echo.New()
	env := newFeesTestEnv()
	handler := NewLedgerHandler(env.ledgers)
	ledger := env.addLedger(t, 1000)

	reqBody := `{"reason": "board approved waiver"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fees/"+ledger.ID.String()+"/waive", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(ledger.ID.String())

	setupAuthContext(c, "auth0|admin", env.schoolID, middleware.RoleAdmin)

	if err := handler.WaiveLedger(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	var response FeeLedgerResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if response.Status != "waived" {
		t.Errorf("Expected status 'waived', got %s", response.Status)
	}
}

func TestWaiveLedger_MissingReason(t *testing.T) {
	e := echo.New()
	env := newFeesTestEnv()
	handler := NewLedgerHandler(env.ledgers)
	ledger := env.addLedger(t, 1000)

	reqBody := `{"reason": ""}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fees/"+ledger.ID.String()+"/waive", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(ledger.ID.String())

	setupAuthContext(c, "auth0|admin", env.schoolID, middleware.RoleAdmin)

	if err := handler.WaiveLedger(c); err != nil {
		t.Fatalf("Expected no error (error should be in response), got %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestDeleteLedger_Success(t *testing.T) {
	e := echo.New()
	env := newFeesTestEnv()
	handler := NewLedgerHandler(env.ledgers)
	ledger := env.addLedger(t, 1000)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/fees/"+ledger.ID.String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(ledger.ID.String())

	setupAuthContext(c, "auth0|admin", env.schoolID, middleware.RoleAdmin)

	if err := handler.DeleteLedger(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", rec.Code)
	}
}

func TestDeleteLedger_WithPaymentsConflict(t *testing.T) {
	e := echo.New()
	env := newFeesTestEnv()
	handler := NewLedgerHandler(env.ledgers)
	ledger := env.addLedger(t, 1000)

	stored := env.repo.Ledgers[ledger.ID]
	stored.Payments = append(stored.Payments, domain.Payment{
		Amount:        decimal.NewFromInt(100),
		PaymentMethod: domain.PaymentMethodCash,
		ReceiptNumber: "REC-00000001",
	})
	stored.PaidAmount = decimal.NewFromInt(100)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/fees/"+ledger.ID.String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(ledger.ID.String())

	setupAuthContext(c, "auth0|admin", env.schoolID, middleware.RoleAdmin)

	if err := handler.DeleteLedger(c); err != nil {
		t.Fatalf("Expected no error (error should be in response), got %v", err)
	}

	if rec.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", rec.Code)
	}
}

func TestGetStudentLedgers_Success(t *testing.T) {
	e := echo.New()
	env := newFeesTestEnv()
	handler := NewLedgerHandler(env.ledgers)
	env.addLedger(t, 1000)
	env.addLedger(t, 500)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fees/student/"+env.studentID.String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("studentId")
	c.SetParamValues(env.studentID.String())

	setupAuthContext(c, "auth0|parent", env.schoolID, middleware.RoleParent)

	if err := handler.GetStudentLedgers(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	var response StudentLedgersResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	if len(response.Ledgers) != 2 {
		t.Errorf("Expected 2 ledgers, got %d", len(response.Ledgers))
	}
	if response.TotalBilled != "1500" {
		t.Errorf("Expected total billed '1500', got %s", response.TotalBilled)
	}
	if response.TotalDue != "1500" {
		t.Errorf("Expected total due '1500', got %s", response.TotalDue)
	}
}

func TestGetStudentLedgers_StudentOwnRecord(t *testing.T) {
	e := echo.New()
	env := newFeesTestEnv()
	handler := NewLedgerHandler(env.ledgers)
	env.addLedger(t, 1000)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fees/student/"+env.studentID.String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("studentId")
	c.SetParamValues(env.studentID.String())

	setupAuthContext(c, "auth0|student", env.schoolID, middleware.RoleStudent)
	ctx := context.WithValue(c.Request().Context(), middleware.StudentIDKey, env.studentID)
	c.SetRequest(c.Request().WithContext(ctx))

	if err := handler.GetStudentLedgers(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
}

func TestGetStudentLedgers_StudentForeignRecordForbidden(t *testing.T) {
	e := echo.New()
	env := newFeesTestEnv()
	handler := NewLedgerHandler(env.ledgers)
	env.addLedger(t, 1000)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fees/student/"+env.studentID.String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("studentId")
	c.SetParamValues(env.studentID.String())

	// Student token carrying a different student record.
	setupAuthContext(c, "auth0|student", env.schoolID, middleware.RoleStudent)
	ctx := context.WithValue(c.Request().Context(), middleware.StudentIDKey, uuid.New())
	c.SetRequest(c.Request().WithContext(ctx))

	if err := handler.GetStudentLedgers(c); err != nil {
		t.Fatalf("Expected no error (error should be in response), got %v", err)
	}

	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", rec.Code)
	}
}
