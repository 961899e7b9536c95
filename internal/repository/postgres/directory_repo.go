package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/campusfee/campusfee-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StudentDirectory implements domain.StudentDirectory using PostgreSQL
type StudentDirectory struct {
	pool *pgxpool.Pool
}

// NewStudentDirectory creates a new StudentDirectory
func NewStudentDirectory(pool *pgxpool.Pool) *StudentDirectory {
	return &StudentDirectory{pool: pool}
}

// GetByID retrieves a student by ID within a school
func (r *StudentDirectory) GetByID(schoolID, id uuid.UUID) (*domain.Student, error) {
	student := &domain.Student{}
	err := r.pool.QueryRow(context.Background(), `
		SELECT id, school_id, student_no, first_name, last_name
		FROM students
		WHERE id = $1 AND school_id = $2`,
		id, schoolID,
	).Scan(&student.ID, &student.SchoolID, &student.StudentNo, &student.FirstName, &student.LastName)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrStudentNotFound
		}
		return nil, err
	}
	return student, nil
}

// ClassDirectory implements domain.ClassDirectory using PostgreSQL
type ClassDirectory struct {
	pool *pgxpool.Pool
}

// NewClassDirectory creates a new ClassDirectory
func NewClassDirectory(pool *pgxpool.Pool) *ClassDirectory {
	return &ClassDirectory{pool: pool}
}

// GetByID retrieves a class by ID within a school
func (r *ClassDirectory) GetByID(schoolID, id uuid.UUID) (*domain.Class, error) {
	class := &domain.Class{}
	var defaultFees []byte
	err := r.pool.QueryRow(context.Background(), `
		SELECT id, school_id, name, level, default_fees
		FROM classes
		WHERE id = $1 AND school_id = $2`,
		id, schoolID,
	).Scan(&class.ID, &class.SchoolID, &class.Name, &class.Level, &defaultFees)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrClassNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(defaultFees, &class.DefaultFees); err != nil {
		return nil, fmt.Errorf("unmarshal default fees: %w", err)
	}
	return class, nil
}
