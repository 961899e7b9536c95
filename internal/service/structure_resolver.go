package service

import (
	"github.com/campusfee/campusfee-backend/internal/domain"
	"github.com/google/uuid"
)

// StructureResolver produces the billable fee structure and discounts for a
// student in a class. It is a pure read: nothing is persisted here. Both
// directory lookups are scoped to the caller's school, so a dangling or
// cross-tenant reference fails before any ledger exists.
type StructureResolver struct {
	students domain.StudentDirectory
	classes  domain.ClassDirectory
}

// NewStructureResolver creates a new StructureResolver
func NewStructureResolver(students domain.StudentDirectory, classes domain.ClassDirectory) *StructureResolver {
	return &StructureResolver{students: students, classes: classes}
}

// ResolvedStructure is the billing draft produced by the resolver.
type ResolvedStructure struct {
	Student      *domain.Student
	Class        *domain.Class
	FeeStructure domain.FeeStructure
	Discounts    domain.Discounts
}

// Resolve validates the student and class references and builds the fee
// structure draft. A nil structure override falls back to the class's default
// fee amounts; a nil discounts override means no discounts.
func (r *StructureResolver) Resolve(schoolID, studentID, classID uuid.UUID, structure *domain.FeeStructure, discounts *domain.Discounts) (*ResolvedStructure, error) {
	student, err := r.students.GetByID(schoolID, studentID)
	if err != nil {
		return nil, err
	}

	class, err := r.classes.GetByID(schoolID, classID)
	if err != nil {
		return nil, err
	}

	resolved := &ResolvedStructure{
		Student:      student,
		Class:        class,
		FeeStructure: class.DefaultFees,
	}
	if structure != nil {
		resolved.FeeStructure = *structure
	}
	if discounts != nil {
		resolved.Discounts = *discounts
	}

	if err := resolved.FeeStructure.Validate(); err != nil {
		return nil, err
	}
	if err := resolved.Discounts.Validate(); err != nil {
		return nil, err
	}

	return resolved, nil
}
