package services

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/planlift/backend/internal/models"
)

// CompanyService manages companies and their member rosters. Any member
// may spend against the shared pocket; only admins may alter membership.
type CompanyService struct {
	db *sql.DB
}

func NewCompanyService(db *sql.DB) *CompanyService {
	return &CompanyService{db: db}
}

// CreateCompany creates a company with the creator as its first admin.
func (s *CompanyService) CreateCompany(ctx context.Context, creatorID, name string) (*models.Company, error) {
	company := &models.Company{
		CompanyID: uuid.NewString(),
		Name:      name,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO companies (company_id, name) VALUES ($1, $2)`,
		company.CompanyID, company.Name); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO company_members (company_id, user_id, role) VALUES ($1, $2, $3)`,
		company.CompanyID, creatorID, models.RoleAdmin); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[COMPANY] Created company %s (%s) with admin %s", company.CompanyID, name, creatorID)
	return company, nil
}

// MemberRole returns the caller's role in a company. ErrNotFound when the
// company does not exist, ErrUnauthorized when the user is not a member.
func (s *CompanyService) MemberRole(ctx context.Context, companyID, userID string) (string, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM companies WHERE company_id = $1)`, companyID).Scan(&exists)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrNotFound
	}

	var role string
	err = s.db.QueryRowContext(ctx,
		`SELECT role FROM company_members WHERE company_id = $1 AND user_id = $2`,
		companyID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUnauthorized
	}
	if err != nil {
		return "", err
	}

	return role, nil
}

// AddMember adds or re-roles a member. Caller must be a company admin.
func (s *CompanyService) AddMember(ctx context.Context, callerID, companyID, userID, role string) error {
	if role != models.RoleAdmin && role != models.RoleMember {
		return ErrNotFound
	}

	if err := s.requireAdmin(ctx, companyID, callerID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO company_members (company_id, user_id, role) VALUES ($1, $2, $3)
		ON CONFLICT (company_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
		companyID, userID, role)
	return err
}

// RemoveMember removes a member. Caller must be a company admin; the last
// admin cannot be removed, which keeps every company manageable.
func (s *CompanyService) RemoveMember(ctx context.Context, callerID, companyID, userID string) error {
	if err := s.requireAdmin(ctx, companyID, callerID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var role string
	err = tx.QueryRowContext(ctx,
		`SELECT role FROM company_members WHERE company_id = $1 AND user_id = $2 FOR UPDATE`,
		companyID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if role == models.RoleAdmin {
		var admins int
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM company_members WHERE company_id = $1 AND role = $2`,
			companyID, models.RoleAdmin).Scan(&admins)
		if err != nil {
			return err
		}
		if admins <= 1 {
			return ErrLastAdmin
		}
	}

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM company_members WHERE company_id = $1 AND user_id = $2`,
		companyID, userID); err != nil {
		return err
	}

	return tx.Commit()
}

// ListMembers returns a company's roster. Caller must be a member.
func (s *CompanyService) ListMembers(ctx context.Context, callerID, companyID string) ([]models.CompanyMember, error) {
	if _, err := s.MemberRole(ctx, companyID, callerID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT company_id, user_id, role FROM company_members
		WHERE company_id = $1 ORDER BY user_id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.CompanyMember
	for rows.Next() {
		var m models.CompanyMember
		if err := rows.Scan(&m.CompanyID, &m.UserID, &m.Role); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *CompanyService) requireAdmin(ctx context.Context, companyID, callerID string) error {
	role, err := s.MemberRole(ctx, companyID, callerID)
	if err != nil {
		return err
	}
	if role != models.RoleAdmin {
		return ErrUnauthorized
	}
	return nil
}
