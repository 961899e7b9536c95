package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/campusfee/campusfee-backend/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

func TestRecordPayment_Success(t *testing.T) {
	e := echo.New()
	env := newFeesTestEnv()
	paymentService := service.NewPaymentService(env.repo, service.NewLedgerLocks())
	handler := NewPaymentHandler(paymentService)
	ledger := env.addLedger(t, 1000)

	reqBody := `{"amount": "1000", "paymentMethod": "cash"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fees/"+ledger.ID.String()+"/pay", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(ledger.ID.String())

	setupAuthContext(c, "auth0|accountant", env.schoolID, "accountant")

	if err := handler.RecordPayment(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	var response RecordPaymentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	// A full payment settles the ledger.
	if response.Ledger.PaidAmount != "1000" {
		t.Errorf("Expected paid '1000', got %s", response.Ledger.PaidAmount)
	}
	if response.Ledger.DueAmount != "0" {
		t.Errorf("Expected due '0', got %s", response.Ledger.DueAmount)
	}
	if response.Ledger.Status != "paid" {
		t.Errorf("Expected status 'paid', got %s", response.Ledger.Status)
	}
	if len(response.Ledger.Payments) != 1 {
		t.Fatalf("Expected 1 payment entry, got %d", len(response.Ledger.Payments))
	}
	if response.Ledger.Payments[0].ReceiptNumber == "" {
		t.Error("Expected a generated receipt number")
	}
	if response.Warning != "" {
		t.Errorf("Expected no warning, got %q", response.Warning)
	}
}

func TestRecordPayment_ZeroAmount(t *testing.T) {
	e := echo.New()
	env := newFeesTestEnv()
	paymentService := service.NewPaymentService(env.repo, service.NewLedgerLocks())
	handler := NewPaymentHandler(paymentService)
	ledger := env.addLedger(t, 1000)

	reqBody := `{"amount": "0", "paymentMethod": "cash"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fees/"+ledger.ID.String()+"/pay", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(ledger.ID.String())

	setupAuthContext(c, "auth0|accountant", env.schoolID, "accountant")

	if err := handler.RecordPayment(c); err != nil {
		t.Fatalf("Expected no error (error should be in response), got %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}

	var problem ProblemDetails
	if err := json.Unmarshal(rec.Body.Bytes(), &problem); err != nil {
		t.Fatalf("Failed to unmarshal problem: %v", err)
	}
	if len(problem.Errors) != 1 || problem.Errors[0].Message != "Amount must be greater than 0" {
		t.Errorf("Expected 'Amount must be greater than 0' field error, got %+v", problem.Errors)
	}

	// The ledger is untouched.
	stored := env.repo.Ledgers[ledger.ID]
	if len(stored.Payments) != 0 {
		t.Errorf("Expected no payment entries, got %d", len(stored.Payments))
	}
	if !stored.PaidAmount.IsZero() {
		t.Errorf("Expected paid 0, got %s", stored.PaidAmount.String())
	}
}

func TestRecordPayment_InvalidMethod(t *testing.T) {
	e := echo.New()
	env := newFeesTestEnv()
	paymentService := service.NewPaymentService(env.repo, service.NewLedgerLocks())
	handler := NewPaymentHandler(paymentService)
	ledger := env.addLedger(t, 1000)

	reqBody := `{"amount": "100", "paymentMethod": "barter"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fees/"+ledger.ID.String()+"/pay", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(ledger.ID.String())

	setupAuthContext(c, "auth0|accountant", env.schoolID, "accountant")

	if err := handler.RecordPayment(c); err != nil {
		t.Fatalf("Expected no error (error should be in response), got %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestRecordPayment_DuplicateReceipt(t *testing.T) {
	e := echo.New()
	env := newFeesTestEnv()
	paymentService := service.NewPaymentService(env.repo, service.NewLedgerLocks())
	handler := NewPaymentHandler(paymentService)
	ledger := env.addLedger(t, 1000)

	pay := func() *httptest.ResponseRecorder {
		reqBody := `{"amount": "100", "paymentMethod": "cash", "receiptNumber": "RCPT-42"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/fees/"+ledger.ID.String()+"/pay", strings.NewReader(reqBody))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues(ledger.ID.String())
		setupAuthContext(c, "auth0|accountant", env.schoolID, "accountant")
		if err := handler.RecordPayment(c); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		return rec
	}

	if rec := pay(); rec.Code != http.StatusOK {
		t.Fatalf("Expected first payment to succeed, got %d", rec.Code)
	}

	// An operator retry with the same receipt number must not double-post.
	rec := pay()
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", rec.Code)
	}

	stored := env.repo.Ledgers[ledger.ID]
	if len(stored.Payments) != 1 {
		t.Errorf("Expected exactly 1 payment entry, got %d", len(stored.Payments))
	}
	if !stored.PaidAmount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected paid 100, got %s", stored.PaidAmount.String())
	}
}

func TestRecordPayment_NotFound(t *testing.T) {
	e := echo.New()
	env := newFeesTestEnv()
	paymentService := service.NewPaymentService(env.repo, service.NewLedgerLocks())
	handler := NewPaymentHandler(paymentService)

	missing := "0a53a773-96cc-4f1f-9fd4-8b0a7e6f8d10"
	reqBody := `{"amount": "100", "paymentMethod": "cash"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fees/"+missing+"/pay", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(missing)

	setupAuthContext(c, "auth0|accountant", env.schoolID, "accountant")

	if err := handler.RecordPayment(c); err != nil {
		t.Fatalf("Expected no error (error should be in response), got %v", err)
	}

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestRecordPayment_MissingInstallmentWarning(t *testing.T) {
	e := echo.New()
	env := newFeesTestEnv()
	locks := service.NewLedgerLocks()
	paymentService := service.NewPaymentService(env.repo, locks)
	scheduleService := service.NewScheduleService(env.repo, locks)
	handler := NewPaymentHandler(paymentService)
	ledger := env.addLedger(t, 1000)

	firstDue := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := scheduleService.ScheduleInstallments(env.schoolID, ledger.ID, 2, firstDue, 30); err != nil {
		t.Fatalf("Failed to schedule installments: %v", err)
	}

	// Installment 9 does not exist: the payment still lands, with a notice.
	reqBody := `{"amount": "100", "paymentMethod": "cash", "installmentNumber": 9}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fees/"+ledger.ID.String()+"/pay", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(ledger.ID.String())

	setupAuthContext(c, "auth0|accountant", env.schoolID, "accountant")

	if err := handler.RecordPayment(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	var response RecordPaymentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	if response.Warning == "" {
		t.Error("Expected an allocation warning for the missing installment")
	}
	if response.Ledger.PaidAmount != "100" {
		t.Errorf("Expected paid '100', got %s", response.Ledger.PaidAmount)
	}
}
