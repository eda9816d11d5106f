package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/library-system/internal/model"
)

const memberColumns = `id, name, email, password_hash, membership_start, membership_end, blacklisted, created_at`

func scanMember(row pgx.Row) (*model.Member, error) {
	var m model.Member
	err := row.Scan(&m.ID, &m.Name, &m.Email, &m.PasswordHash,
		&m.MembershipStart, &m.MembershipEnd, &m.Blacklisted, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("scan member: %w", err)
	}
	return &m, nil
}

// CreateMember создаёт нового читателя.
func (r *PostgresRepository) CreateMember(ctx context.Context, name, email string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO members (name, email, password_hash) VALUES ($1, $2, $3) RETURNING id`,
		name, email, passwordHash,
	).Scan(&id)
	if err != nil {
		if pgCode(err) == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrMemberExists, email)
		}
		return 0, fmt.Errorf("create member: %w", err)
	}
	return id, nil
}

// GetMemberByEmail возвращает читателя по email.
func (r *PostgresRepository) GetMemberByEmail(ctx context.Context, email string) (*model.Member, error) {
	return scanMember(r.pool.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE email = $1`, email))
}

// GetMember возвращает читателя по идентификатору.
func (r *PostgresRepository) GetMember(ctx context.Context, id int64) (*model.Member, error) {
	return scanMember(r.pool.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = $1`, id))
}

// ListMembers возвращает страницу читателей.
func (r *PostgresRepository) ListMembers(ctx context.Context, limit, offset int) ([]model.Member, error) {
	l, o := pageBounds(limit, offset)

	rows, err := r.pool.Query(ctx,
		`SELECT `+memberColumns+` FROM members ORDER BY id LIMIT $1 OFFSET $2`,
		int64(l), int64(o),
	)
	if err != nil {
		return nil, fmt.Errorf("select members: %w", err)
	}
	defer rows.Close()

	var res []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// SetMemberBlacklisted ставит или снимает блокировку читателя.
func (r *PostgresRepository) SetMemberBlacklisted(ctx context.Context, id int64, blacklisted bool) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE members SET blacklisted = $2 WHERE id = $1`, id, blacklisted)
	if err != nil {
		return fmt.Errorf("update member: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// RenewMembership продлевает абонемент на срок тарифа и записывает оплату в журнал.
// Использует блокировку строки читателя для сериализации продлений.
func (r *PostgresRepository) RenewMembership(ctx context.Context, memberID int64, pkg model.Package, now time.Time) (*model.Member, *model.Payment, error) {
	var (
		member  *model.Member
		payment *model.Payment
	)

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		// Блокируем строку читателя, чтобы параллельные продления не потеряли дни.
		m, err := scanMember(tx.QueryRow(ctx,
			`SELECT `+memberColumns+` FROM members WHERE id = $1 FOR UPDATE`, memberID))
		if err != nil {
			return err
		}

		start, end := extendMembership(m.MembershipStart, m.MembershipEnd, pkg.DurationDays, now)

		_, err = tx.Exec(ctx,
			`UPDATE members SET membership_start = $2, membership_end = $3 WHERE id = $1`,
			memberID, start, end,
		)
		if err != nil {
			return fmt.Errorf("update membership: %w", err)
		}
		m.MembershipStart, m.MembershipEnd = &start, &end

		p := model.Payment{MemberID: memberID, PackageID: &pkg.ID, AmountCents: pkg.PriceCents, PaidAt: now}
		err = tx.QueryRow(ctx,
			`INSERT INTO payments (member_id, package_id, amount_cents, paid_at)
			 VALUES ($1, $2, $3, $4) RETURNING id`,
			memberID, pkg.ID, pkg.PriceCents, now,
		).Scan(&p.ID)
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		member, payment = m, &p
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return member, payment, nil
}

// extendMembership добавляет days к действующему абонементу либо открывает новый с момента now.
func extendMembership(start, end *time.Time, days int, now time.Time) (time.Time, time.Time) {
	period := time.Duration(days) * 24 * time.Hour

	if end != nil && end.After(now) {
		s := now
		if start != nil {
			s = *start
		}
		return s, end.Add(period)
	}
	return now, now.Add(period)
}

// ListPayments возвращает журнал оплат, при memberID != nil только одного читателя.
func (r *PostgresRepository) ListPayments(ctx context.Context, memberID *int64, limit, offset int) ([]model.Payment, error) {
	l, o := pageBounds(limit, offset)

	rows, err := r.pool.Query(ctx,
		`SELECT id, member_id, package_id, amount_cents, paid_at
		 FROM payments
		 WHERE $1::BIGINT IS NULL OR member_id = $1
		 ORDER BY paid_at DESC
		 LIMIT $2 OFFSET $3`,
		memberID, int64(l), int64(o),
	)
	if err != nil {
		return nil, fmt.Errorf("select payments: %w", err)
	}
	defer rows.Close()

	var res []model.Payment
	for rows.Next() {
		var p model.Payment
		if err := rows.Scan(&p.ID, &p.MemberID, &p.PackageID, &p.AmountCents, &p.PaidAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

const staffColumns = `id, name, email, password_hash, role, branch_id, created_at`

func scanStaff(row pgx.Row) (*model.Staff, error) {
	var (
		s    model.Staff
		role string
	)
	err := row.Scan(&s.ID, &s.Name, &s.Email, &s.PasswordHash, &role, &s.BranchID, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaffNotFound
		}
		return nil, fmt.Errorf("scan staff: %w", err)
	}
	s.Role = model.StaffRole(role)
	return &s, nil
}

// CreateStaff создаёт сотрудника.
func (r *PostgresRepository) CreateStaff(ctx context.Context, s model.Staff) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO staff (name, email, password_hash, role, branch_id)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		s.Name, s.Email, s.PasswordHash, string(s.Role), s.BranchID,
	).Scan(&id)
	if err != nil {
		switch pgCode(err) {
		case pgerrcode.UniqueViolation:
			return 0, fmt.Errorf("%w: %s", ErrStaffExists, s.Email)
		case pgerrcode.ForeignKeyViolation:
			return 0, ErrInvalidReference
		}
		return 0, fmt.Errorf("create staff: %w", err)
	}
	return id, nil
}

// GetStaffByEmail возвращает сотрудника по email.
func (r *PostgresRepository) GetStaffByEmail(ctx context.Context, email string) (*model.Staff, error) {
	return scanStaff(r.pool.QueryRow(ctx,
		`SELECT `+staffColumns+` FROM staff WHERE email = $1`, email))
}

// ListStaff возвращает всех сотрудников.
func (r *PostgresRepository) ListStaff(ctx context.Context) ([]model.Staff, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+staffColumns+` FROM staff ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select staff: %w", err)
	}
	defer rows.Close()

	var res []model.Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// UpdateStaff обновляет имя, роль и филиал сотрудника.
func (r *PostgresRepository) UpdateStaff(ctx context.Context, s model.Staff) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE staff SET name = $2, role = $3, branch_id = $4 WHERE id = $1`,
		s.ID, s.Name, string(s.Role), s.BranchID,
	)
	if err != nil {
		if pgCode(err) == pgerrcode.ForeignKeyViolation {
			return ErrInvalidReference
		}
		return fmt.Errorf("update staff: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrStaffNotFound
	}
	return nil
}

// DeleteStaff удаляет сотрудника.
func (r *PostgresRepository) DeleteStaff(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM staff WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete staff: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrStaffNotFound
	}
	return nil
}
