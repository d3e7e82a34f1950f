package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/coopfin/coopfin/internal/ledger/shared"
)

// CreateInput carries the fields needed to add a chart-of-accounts node.
type CreateInput struct {
	TenantID int64
	Code     string
	Name     string
	Type     AccountType
	IsGroup  bool
	ParentID *int64
}

// Validate ensures the input describes a well-formed account.
func (in CreateInput) Validate() error {
	if in.TenantID == 0 {
		return fmt.Errorf("%w: tenant required", shared.ErrValidation)
	}
	if strings.TrimSpace(in.Code) == "" {
		return fmt.Errorf("%w: code required", shared.ErrValidation)
	}
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name required", shared.ErrValidation)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown account type %q", shared.ErrValidation, in.Type)
	}
	return nil
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create registers a new account. Codes are unique per tenant; a collision
// surfaces as ErrDuplicateCode.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	if in.ParentID != nil {
		parent, err := s.repo.GetByID(ctx, in.TenantID, *in.ParentID)
		if err != nil {
			return Account{}, err
		}
		if !parent.IsGroup {
			return Account{}, fmt.Errorf("%w: parent %s is not a group account", shared.ErrValidation, parent.Code)
		}
	}
	return s.repo.Insert(ctx, Account{
		TenantID: in.TenantID,
		Code:     strings.TrimSpace(in.Code),
		Name:     strings.TrimSpace(in.Name),
		Type:     in.Type,
		IsGroup:  in.IsGroup,
		IsActive: true,
		ParentID: in.ParentID,
	})
}

// Resolve looks an account up by id.
func (s *Service) Resolve(ctx context.Context, tenantID, id int64) (Account, error) {
	return s.repo.GetByID(ctx, tenantID, id)
}

// ResolveCode looks an account up by its tenant-unique code.
func (s *Service) ResolveCode(ctx context.Context, tenantID int64, code string) (Account, error) {
	return s.repo.GetByCode(ctx, tenantID, code)
}

// List returns the full chart for a tenant, ordered by code.
func (s *Service) List(ctx context.Context, tenantID int64) ([]Account, error) {
	return s.repo.List(ctx, tenantID)
}

// ListLeaf returns active non-group accounts of a type, the only valid
// posting targets.
func (s *Service) ListLeaf(ctx context.Context, tenantID int64, accountType AccountType) ([]Account, error) {
	if !accountType.Valid() {
		return nil, fmt.Errorf("%w: unknown account type %q", shared.ErrValidation, accountType)
	}
	return s.repo.ListLeaf(ctx, tenantID, accountType)
}

// Deactivate soft-disables an account. Accounts are never deleted once
// posted to; deactivation only stops future postings.
func (s *Service) Deactivate(ctx context.Context, tenantID, id int64) error {
	return s.repo.SetActive(ctx, tenantID, id, false)
}
