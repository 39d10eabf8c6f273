package service

import (
	"context"

	"care-ledger/internal/core/domain"
	"care-ledger/internal/core/ports"
	"care-ledger/pkg/apperror"
)

// PrincipalResolverImpl fills in the family or operator a caller acts for
// when the bearer token does not carry it.
type PrincipalResolverImpl struct {
	directory ports.DirectoryRepository
}

func NewPrincipalResolver(directory ports.DirectoryRepository) *PrincipalResolverImpl {
	return &PrincipalResolverImpl{directory: directory}
}

// Resolve returns principal unchanged when its claims are complete.
// Otherwise the user is looked up; an unknown user is unauthorized.
func (r *PrincipalResolverImpl) Resolve(ctx context.Context, principal domain.Principal) (domain.Principal, error) {
	if !needsLookup(principal) {
		return principal, nil
	}

	user, err := r.directory.GetUser(ctx, principal.UserID)
	if err != nil {
		return principal, apperror.ErrDatabaseError(err)
	}
	if user == nil {
		return principal, apperror.ErrUnauthorized()
	}

	if principal.FamilyID == nil {
		principal.FamilyID = user.FamilyID
	}
	if principal.OperatorID == nil {
		principal.OperatorID = user.OperatorID
	}
	return principal, nil
}

func needsLookup(p domain.Principal) bool {
	switch p.Role {
	case domain.RoleFamily:
		return p.FamilyID == nil
	case domain.RoleOperator:
		return p.OperatorID == nil
	default:
		return false
	}
}
