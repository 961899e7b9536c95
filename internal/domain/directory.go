package domain

import "github.com/google/uuid"

// Student is a read-only reference entity from the student directory.
// The fee ledger never writes to it.
type Student struct {
	ID        uuid.UUID `json:"id"`
	SchoolID  uuid.UUID `json:"school"`
	StudentNo string    `json:"studentId"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
}

// Class is a read-only reference entity from the class directory. Its
// DefaultFees seed the fee structure when a ledger is created without
// explicit amounts.
type Class struct {
	ID          uuid.UUID    `json:"id"`
	SchoolID    uuid.UUID    `json:"school"`
	Name        string       `json:"name"`
	Level       string       `json:"level"`
	DefaultFees FeeStructure `json:"defaultFees"`
}

// StudentDirectory resolves student references within a school.
type StudentDirectory interface {
	GetByID(schoolID, id uuid.UUID) (*Student, error)
}

// ClassDirectory resolves class references within a school.
type ClassDirectory interface {
	GetByID(schoolID, id uuid.UUID) (*Class, error)
}
