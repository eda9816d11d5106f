package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/library-system/internal/holds"
	"github.com/mmeshcher/library-system/internal/model"
	"github.com/mmeshcher/library-system/internal/openlibrary"
	"github.com/mmeshcher/library-system/internal/repository"
)

// stubRepo переопределяет только нужные тестам методы; вызов остальных паникует.
type stubRepo struct {
	Repository

	createdName  string
	createdEmail string
	createdHash  []byte
	createErr    error

	member    *model.Member
	memberErr error
	staff     *model.Staff

	loans []model.Loan
	holds []model.Hold

	pkg       *model.Package
	pkgErr    error
	renewedAt time.Time
	renewPkg  model.Package

	authors       map[string]int64
	createdAuthor string
	createdBook   model.Book
	books         map[int64]*model.Book
}

func (s *stubRepo) CreateMember(_ context.Context, name, email string, hash []byte) (int64, error) {
	s.createdName, s.createdEmail, s.createdHash = name, email, hash
	return 10, s.createErr
}

func (s *stubRepo) GetMemberByEmail(_ context.Context, email string) (*model.Member, error) {
	if s.member == nil || s.member.Email != email {
		return nil, repository.ErrMemberNotFound
	}
	return s.member, nil
}

func (s *stubRepo) GetMember(_ context.Context, id int64) (*model.Member, error) {
	if s.memberErr != nil {
		return nil, s.memberErr
	}
	return s.member, nil
}

func (s *stubRepo) GetStaffByEmail(_ context.Context, email string) (*model.Staff, error) {
	if s.staff == nil || s.staff.Email != email {
		return nil, repository.ErrStaffNotFound
	}
	return s.staff, nil
}

func (s *stubRepo) LoansByMember(context.Context, int64, bool) ([]model.Loan, error) {
	return s.loans, nil
}

func (s *stubRepo) HoldsByMember(context.Context, int64, time.Time) ([]model.Hold, error) {
	return s.holds, nil
}

func (s *stubRepo) GetPackage(context.Context, int64) (*model.Package, error) {
	return s.pkg, s.pkgErr
}

func (s *stubRepo) RenewMembership(_ context.Context, memberID int64, pkg model.Package, now time.Time) (*model.Member, *model.Payment, error) {
	s.renewedAt, s.renewPkg = now, pkg
	return s.member, &model.Payment{MemberID: memberID, PackageID: &pkg.ID, AmountCents: pkg.PriceCents, PaidAt: now}, nil
}

func (s *stubRepo) FindAuthorByName(_ context.Context, name string) (*model.Author, error) {
	if id, ok := s.authors[name]; ok {
		return &model.Author{ID: id, Name: name}, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubRepo) CreateAuthor(_ context.Context, a model.Author) (int64, error) {
	s.createdAuthor = a.Name
	return 77, nil
}

func (s *stubRepo) CreateBook(_ context.Context, b model.Book) (int64, error) {
	s.createdBook = b
	b.ID = 5
	if s.books == nil {
		s.books = make(map[int64]*model.Book)
	}
	s.books[b.ID] = &b
	return b.ID, nil
}

func (s *stubRepo) GetBook(_ context.Context, id int64) (*model.Book, error) {
	b, ok := s.books[id]
	if !ok {
		return nil, repository.ErrBookNotFound
	}
	return b, nil
}

type stubHolder struct {
	calls []string
}

func (h *stubHolder) RequestHold(context.Context, int64, int64) (holds.Result, error) {
	h.calls = append(h.calls, "request")
	return holds.Result{BookID: 1, Message: "ok"}, nil
}

func (h *stubHolder) ListHolds(context.Context, *int64) []model.Hold {
	h.calls = append(h.calls, "list")
	return nil
}

func (h *stubHolder) ConfirmPickup(context.Context, int64, int64) (model.Loan, error) {
	h.calls = append(h.calls, "confirm")
	return model.Loan{}, nil
}

func (h *stubHolder) CancelHold(context.Context, int64, int64) error {
	h.calls = append(h.calls, "cancel")
	return nil
}

func (h *stubHolder) ReturnLoan(context.Context, int64, int64) (model.Loan, error) {
	h.calls = append(h.calls, "return")
	return model.Loan{}, nil
}

type stubMetadata struct {
	edition *openlibrary.Edition
	err     error
}

func (m *stubMetadata) Lookup(context.Context, string) (*openlibrary.Edition, error) {
	return m.edition, m.err
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(repo Repository, metadata MetadataSource) *Service {
	svc := NewService(repo, &stubHolder{}, metadata)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func mustHash(t *testing.T, password string) []byte {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return h
}

func TestSignup_HashesPasswordAndNormalizesEmail(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(repo, nil)

	id, err := svc.Signup(context.Background(), " Ann ", " Ann@Example.COM ", "secret-pass")
	require.NoError(t, err)
	assert.Equal(t, int64(10), id)
	assert.Equal(t, "Ann", repo.createdName)
	assert.Equal(t, "ann@example.com", repo.createdEmail)
	assert.NoError(t, bcrypt.CompareHashAndPassword(repo.createdHash, []byte("secret-pass")))
}

func TestSignup_PropagatesDuplicateError(t *testing.T) {
	repo := &stubRepo{createErr: repository.ErrMemberExists}
	svc := newTestService(repo, nil)

	_, err := svc.Signup(context.Background(), "Ann", "ann@example.com", "secret-pass")
	assert.ErrorIs(t, err, repository.ErrMemberExists)
}

func TestLogin(t *testing.T) {
	repo := &stubRepo{member: &model.Member{ID: 3, Email: "ann@example.com", PasswordHash: mustHash(t, "right")}}
	svc := newTestService(repo, nil)

	id, err := svc.Login(context.Background(), "ANN@example.com", "right")
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)

	_, err = svc.Login(context.Background(), "ann@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "nobody@example.com", "right")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestStaffLogin(t *testing.T) {
	repo := &stubRepo{staff: &model.Staff{ID: 2, Email: "lib@example.com", Role: model.StaffRoleAdmin, PasswordHash: mustHash(t, "pw")}}
	svc := newTestService(repo, nil)

	st, err := svc.StaffLogin(context.Background(), "lib@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, model.StaffRoleAdmin, st.Role)

	_, err = svc.StaffLogin(context.Background(), "lib@example.com", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestProfile_DerivesMembershipStatus(t *testing.T) {
	end := fixedNow.Add(24 * time.Hour)
	repo := &stubRepo{member: &model.Member{ID: 1, MembershipEnd: &end}}
	svc := newTestService(repo, nil)

	p, err := svc.Profile(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.MembershipActive, p.Membership)
	assert.NotNil(t, p.Loans)
	assert.NotNil(t, p.Holds)

	repo.member.Blacklisted = true
	p, err = svc.Profile(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.MembershipBlacklisted, p.Membership)
}

func TestProfile_MemberNotFound(t *testing.T) {
	svc := newTestService(&stubRepo{memberErr: repository.ErrMemberNotFound}, nil)

	_, err := svc.Profile(context.Background(), 1)
	assert.ErrorIs(t, err, repository.ErrMemberNotFound)
}

func TestRenew(t *testing.T) {
	pkg := &model.Package{ID: 4, Name: "Month", DurationDays: 30, PriceCents: 500}
	repo := &stubRepo{member: &model.Member{ID: 1}, pkg: pkg}
	svc := newTestService(repo, nil)

	_, payment, err := svc.Renew(context.Background(), 1, 4)
	require.NoError(t, err)
	assert.Equal(t, fixedNow, repo.renewedAt)
	assert.Equal(t, *pkg, repo.renewPkg)
	assert.Equal(t, int64(500), payment.AmountCents)
}

func TestRenew_Blacklisted(t *testing.T) {
	repo := &stubRepo{member: &model.Member{ID: 1, Blacklisted: true}, pkg: &model.Package{ID: 4, DurationDays: 30}}
	svc := newTestService(repo, nil)

	_, _, err := svc.Renew(context.Background(), 1, 4)
	assert.ErrorIs(t, err, ErrMemberBlacklisted)
}

func TestRenew_UnknownPackage(t *testing.T) {
	repo := &stubRepo{member: &model.Member{ID: 1}, pkgErr: repository.ErrNotFound}
	svc := newTestService(repo, nil)

	_, _, err := svc.Renew(context.Background(), 1, 99)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestImportByISBN_CreatesAuthor(t *testing.T) {
	repo := &stubRepo{authors: map[string]int64{}}
	meta := &stubMetadata{edition: &openlibrary.Edition{
		Title:    "The Go Programming Language",
		Subtitle: "Second Edition",
		Authors:  []openlibrary.Named{{Name: "Alan Donovan"}},
	}}
	svc := newTestService(repo, meta)

	branch := int64(2)
	b, err := svc.ImportByISBN(context.Background(), "978-0-306-40615-7", &branch, model.BookFormatPhysical)
	require.NoError(t, err)

	assert.Equal(t, "Alan Donovan", repo.createdAuthor)
	require.NotNil(t, repo.createdBook.AuthorID)
	assert.Equal(t, int64(77), *repo.createdBook.AuthorID)
	assert.Equal(t, "9780306406157", repo.createdBook.ISBN)
	assert.Equal(t, "The Go Programming Language: Second Edition", b.Title)
}

func TestImportByISBN_ReusesAuthor(t *testing.T) {
	repo := &stubRepo{authors: map[string]int64{"Alan Donovan": 8}}
	meta := &stubMetadata{edition: &openlibrary.Edition{
		Title:   "The Go Programming Language",
		Authors: []openlibrary.Named{{Name: "Alan Donovan"}},
	}}
	svc := newTestService(repo, meta)

	_, err := svc.ImportByISBN(context.Background(), "9780306406157", nil, "")
	require.NoError(t, err)
	assert.Empty(t, repo.createdAuthor)
	assert.Equal(t, int64(8), *repo.createdBook.AuthorID)
}

func TestImportByISBN_Errors(t *testing.T) {
	svc := newTestService(&stubRepo{}, nil)
	_, err := svc.ImportByISBN(context.Background(), "9780306406157", nil, "")
	assert.ErrorIs(t, err, ErrImportUnavailable)

	svc = newTestService(&stubRepo{}, &stubMetadata{})
	_, err = svc.ImportByISBN(context.Background(), "9780306406158", nil, "")
	assert.ErrorIs(t, err, ErrInvalidISBN)

	svc = newTestService(&stubRepo{}, &stubMetadata{err: openlibrary.ErrNotFound})
	_, err = svc.ImportByISBN(context.Background(), "9780306406157", nil, "")
	assert.True(t, errors.Is(err, openlibrary.ErrNotFound))
}

func TestCreateBook_RejectsBadISBN(t *testing.T) {
	svc := newTestService(&stubRepo{}, nil)

	_, err := svc.CreateBook(context.Background(), model.Book{Title: "X", ISBN: "12345"})
	assert.ErrorIs(t, err, ErrInvalidISBN)
}

func TestBorrowOperationsDelegateToHolder(t *testing.T) {
	h := &stubHolder{}
	svc := NewService(&stubRepo{}, h, nil)
	ctx := context.Background()

	_, _ = svc.RequestHold(ctx, 1, 1)
	_ = svc.ListHolds(ctx, nil)
	_, _ = svc.ConfirmPickup(ctx, 1, 1)
	_ = svc.CancelHold(ctx, 1, 1)
	_, _ = svc.ReturnLoan(ctx, 1, 1)

	assert.Equal(t, []string{"request", "list", "confirm", "cancel", "return"}, h.calls)
}
