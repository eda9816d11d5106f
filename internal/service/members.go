package service

import (
	"context"
	"errors"

	"github.com/mmeshcher/library-system/internal/model"
	"github.com/mmeshcher/library-system/internal/repository"
)

// Profile описывает личный кабинет читателя.
type Profile struct {
	Member     *model.Member          `json:"member"`
	Membership model.MembershipStatus `json:"membership_status"`
	Loans      []model.Loan           `json:"loans"`
	Holds      []model.Hold           `json:"holds"`
}

// Profile собирает данные читателя, вычисленный статус абонемента, открытые выдачи и брони.
func (s *Service) Profile(ctx context.Context, memberID int64) (*Profile, error) {
	now := s.now()

	m, err := s.repo.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	loans, err := s.repo.LoansByMember(ctx, memberID, true)
	if err != nil {
		return nil, err
	}

	memberHolds, err := s.repo.HoldsByMember(ctx, memberID, now)
	if err != nil {
		return nil, err
	}

	if loans == nil {
		loans = []model.Loan{}
	}
	if memberHolds == nil {
		memberHolds = []model.Hold{}
	}

	return &Profile{
		Member:     m,
		Membership: m.MembershipStatus(now),
		Loans:      loans,
		Holds:      memberHolds,
	}, nil
}

// LoanHistory возвращает все выдачи читателя.
func (s *Service) LoanHistory(ctx context.Context, memberID int64) ([]model.Loan, error) {
	return s.repo.LoansByMember(ctx, memberID, false)
}

// Renew продлевает абонемент читателя на срок тарифа и записывает оплату.
func (s *Service) Renew(ctx context.Context, memberID, packageID int64) (*model.Member, *model.Payment, error) {
	pkg, err := s.repo.GetPackage(ctx, packageID)
	if err != nil {
		return nil, nil, err
	}

	m, err := s.repo.GetMember(ctx, memberID)
	if err != nil {
		return nil, nil, err
	}
	if m.Blacklisted {
		return nil, nil, ErrMemberBlacklisted
	}

	return s.repo.RenewMembership(ctx, memberID, *pkg, s.now())
}

// MemberView описывает читателя с вычисленным статусом абонемента.
type MemberView struct {
	model.Member
	Membership model.MembershipStatus `json:"membership_status"`
}

// ListMembers возвращает страницу читателей со статусами абонементов.
func (s *Service) ListMembers(ctx context.Context, limit, offset int) ([]MemberView, error) {
	members, err := s.repo.ListMembers(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	now := s.now()
	res := make([]MemberView, 0, len(members))
	for _, m := range members {
		res = append(res, MemberView{Member: m, Membership: m.MembershipStatus(now)})
	}
	return res, nil
}

// SetBlacklisted ставит или снимает блокировку читателя.
func (s *Service) SetBlacklisted(ctx context.Context, memberID int64, blacklisted bool) error {
	return s.repo.SetMemberBlacklisted(ctx, memberID, blacklisted)
}

// ListPayments возвращает журнал оплат.
func (s *Service) ListPayments(ctx context.Context, memberID *int64, limit, offset int) ([]model.Payment, error) {
	return s.repo.ListPayments(ctx, memberID, limit, offset)
}

// ListPackages возвращает тарифы абонементов.
func (s *Service) ListPackages(ctx context.Context) ([]model.Package, error) {
	return s.repo.ListPackages(ctx)
}

// CreatePackage добавляет тариф.
func (s *Service) CreatePackage(ctx context.Context, p model.Package) (int64, error) {
	return s.repo.CreatePackage(ctx, p)
}

// UpdatePackage обновляет тариф.
func (s *Service) UpdatePackage(ctx context.Context, p model.Package) error {
	return s.repo.UpdatePackage(ctx, p)
}

// DeletePackage удаляет тариф.
func (s *Service) DeletePackage(ctx context.Context, id int64) error {
	return s.repo.DeletePackage(ctx, id)
}

// ListStaff возвращает сотрудников.
func (s *Service) ListStaff(ctx context.Context) ([]model.Staff, error) {
	return s.repo.ListStaff(ctx)
}

// UpdateStaff обновляет сотрудника.
func (s *Service) UpdateStaff(ctx context.Context, st model.Staff) error {
	return s.repo.UpdateStaff(ctx, st)
}

// DeleteStaff удаляет сотрудника.
func (s *Service) DeleteStaff(ctx context.Context, id int64) error {
	return s.repo.DeleteStaff(ctx, id)
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
