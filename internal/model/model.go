// Package model содержит доменные сущности библиотечного сервиса.
package model

import "time"

// BookStatus описывает состояние доступности экземпляра.
type BookStatus string

const (
	BookStatusAvailable BookStatus = "available"
	BookStatusReserved  BookStatus = "reserved"
	BookStatusBorrowed  BookStatus = "borrowed"
	BookStatusLost      BookStatus = "lost"
)

// Valid сообщает, является ли статус одним из известных.
func (s BookStatus) Valid() bool {
	switch s {
	case BookStatusAvailable, BookStatusReserved, BookStatusBorrowed, BookStatusLost:
		return true
	}
	return false
}

// BookFormat описывает носитель экземпляра.
type BookFormat string

const (
	BookFormatPhysical BookFormat = "physical"
	BookFormatDigital  BookFormat = "digital"
)

// Valid сообщает, является ли формат одним из известных.
func (f BookFormat) Valid() bool {
	return f == BookFormatPhysical || f == BookFormatDigital
}

// Book представляет экземпляр книги в каталоге.
type Book struct {
	ID         int64      `json:"id"`
	Title      string     `json:"title"`
	ISBN       string     `json:"isbn,omitempty"`
	AuthorID   *int64     `json:"author_id,omitempty"`
	AuthorName string     `json:"author,omitempty"`
	CategoryID *int64     `json:"category_id,omitempty"`
	Category   string     `json:"category,omitempty"`
	BranchID   *int64     `json:"branch_id,omitempty"`
	Branch     string     `json:"branch,omitempty"`
	Status     BookStatus `json:"status"`
	Format     BookFormat `json:"format"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Hold описывает бронь экземпляра до выдачи.
type Hold struct {
	BookID    int64     `json:"book_id"`
	MemberID  int64     `json:"member_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired сообщает, истекла ли бронь к моменту now.
func (h Hold) Expired(now time.Time) bool {
	return !now.Before(h.ExpiresAt)
}

// Loan описывает выдачу экземпляра читателю.
type Loan struct {
	ID         int64      `json:"id"`
	BookID     int64      `json:"book_id"`
	MemberID   int64      `json:"member_id"`
	BorrowedAt time.Time  `json:"borrowed_at"`
	DueAt      time.Time  `json:"due_at"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
}

// Open сообщает, не возвращён ли ещё экземпляр.
func (l Loan) Open() bool {
	return l.ReturnedAt == nil
}

// MembershipStatus описывает вычисляемый статус абонемента.
type MembershipStatus string

const (
	MembershipActive      MembershipStatus = "active"
	MembershipExpired     MembershipStatus = "expired"
	MembershipBlacklisted MembershipStatus = "blacklisted"
)

// Member представляет читателя библиотеки.
type Member struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	PasswordHash    []byte     `json:"-"`
	MembershipStart *time.Time `json:"membership_start,omitempty"`
	MembershipEnd   *time.Time `json:"membership_end,omitempty"`
	Blacklisted     bool       `json:"blacklisted"`
	CreatedAt       time.Time  `json:"created_at"`
}

// MembershipStatus вычисляет статус абонемента на момент now.
// Статус не хранится в БД: он всегда выводится из даты окончания и признака блокировки.
func (m Member) MembershipStatus(now time.Time) MembershipStatus {
	if m.Blacklisted {
		return MembershipBlacklisted
	}
	if m.MembershipEnd == nil || !now.Before(*m.MembershipEnd) {
		return MembershipExpired
	}
	return MembershipActive
}

// Author описывает автора.
type Author struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Bio  string `json:"bio,omitempty"`
}

// Category описывает рубрику каталога.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Branch описывает филиал библиотеки.
type Branch struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

// StaffRole описывает роль сотрудника.
type StaffRole string

const (
	StaffRoleLibrarian StaffRole = "librarian"
	StaffRoleAdmin     StaffRole = "admin"
)

// Staff описывает сотрудника библиотеки.
type Staff struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"-"`
	Role         StaffRole `json:"role"`
	BranchID     *int64    `json:"branch_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Package описывает тариф абонемента.
type Package struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	DurationDays int    `json:"duration_days"`
	PriceCents   int64  `json:"price_cents"`
}

// Payment описывает запись в журнале оплат.
type Payment struct {
	ID          int64     `json:"id"`
	MemberID    int64     `json:"member_id"`
	PackageID   *int64    `json:"package_id,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	PaidAt      time.Time `json:"paid_at"`
}

// BookFilter задаёт параметры поиска по каталогу.
type BookFilter struct {
	Query      string
	Status     BookStatus
	Format     BookFormat
	BranchID   *int64
	CategoryID *int64
	AuthorID   *int64
	Limit      int
	Offset     int
}
