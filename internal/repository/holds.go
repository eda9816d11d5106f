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

// ReserveBook атомарно переводит экземпляр из available в reserved и сохраняет бронь.
// Если статус экземпляра уже не available, возвращает ErrBookUnavailable.
func (r *PostgresRepository) ReserveBook(ctx context.Context, hold model.Hold) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		cmdTag, err := tx.Exec(ctx,
			`UPDATE books SET status = $2 WHERE id = $1 AND status = $3`,
			hold.BookID, string(model.BookStatusReserved), string(model.BookStatusAvailable),
		)
		if err != nil {
			return fmt.Errorf("reserve book: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrBookUnavailable
		}

		// Строка брони могла остаться от истёкшей брони, которую ещё не вычистили.
		_, err = tx.Exec(ctx,
			`INSERT INTO holds (book_id, member_id, created_at, expires_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (book_id) DO UPDATE
			 SET member_id = EXCLUDED.member_id,
			     created_at = EXCLUDED.created_at,
			     expires_at = EXCLUDED.expires_at`,
			hold.BookID, hold.MemberID, hold.CreatedAt, hold.ExpiresAt,
		)
		if err != nil {
			if pgCode(err) == pgerrcode.ForeignKeyViolation {
				return ErrMemberNotFound
			}
			return fmt.Errorf("insert hold: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// HasActiveClaim сообщает, есть ли у экземпляра живая бронь или открытая выдача.
func (r *PostgresRepository) HasActiveClaim(ctx context.Context, bookID int64, now time.Time) (bool, error) {
	var claimed bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM holds WHERE book_id = $1 AND expires_at > $2)
		     OR EXISTS (SELECT 1 FROM loans WHERE book_id = $1 AND returned_at IS NULL)`,
		bookID, now,
	).Scan(&claimed)
	if err != nil {
		return false, fmt.Errorf("check claims: %w", err)
	}
	return claimed, nil
}

// HealBookStatus возвращает экземпляр в available, если его статус всё ещё равен from
// и у него нет ни живой брони, ни открытой выдачи.
func (r *PostgresRepository) HealBookStatus(ctx context.Context, bookID int64, from model.BookStatus, now time.Time) (bool, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE books SET status = $3
		 WHERE id = $1 AND status = $2
		   AND NOT EXISTS (SELECT 1 FROM holds WHERE book_id = $1 AND expires_at > $4)
		   AND NOT EXISTS (SELECT 1 FROM loans WHERE book_id = $1 AND returned_at IS NULL)`,
		bookID, string(from), string(model.BookStatusAvailable), now,
	)
	if err != nil {
		return false, fmt.Errorf("heal book status: %w", err)
	}
	return cmdTag.RowsAffected() == 1, nil
}

// ConfirmPickup превращает бронь читателя в выдачу со сроком возврата dueAt.
func (r *PostgresRepository) ConfirmPickup(ctx context.Context, bookID, memberID int64, now, dueAt time.Time) (model.Loan, error) {
	var loan model.Loan

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		cmdTag, err := tx.Exec(ctx,
			`DELETE FROM holds WHERE book_id = $1 AND member_id = $2 AND expires_at > $3`,
			bookID, memberID, now,
		)
		if err != nil {
			return fmt.Errorf("delete hold: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrHoldNotFound
		}

		loan = model.Loan{BookID: bookID, MemberID: memberID, BorrowedAt: now, DueAt: dueAt}
		err = tx.QueryRow(ctx,
			`INSERT INTO loans (book_id, member_id, format, borrowed_at, due_at)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			bookID, memberID, string(model.BookFormatPhysical), now, dueAt,
		).Scan(&loan.ID)
		if err != nil {
			if pgCode(err) == pgerrcode.UniqueViolation {
				return ErrBookUnavailable
			}
			return fmt.Errorf("insert loan: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE books SET status = $2 WHERE id = $1`,
			bookID, string(model.BookStatusBorrowed),
		)
		if err != nil {
			return fmt.Errorf("mark book borrowed: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Loan{}, err
	}
	return loan, nil
}

// CancelHold удаляет бронь читателя и возвращает экземпляр в available.
func (r *PostgresRepository) CancelHold(ctx context.Context, bookID, memberID int64) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		cmdTag, err := tx.Exec(ctx,
			`DELETE FROM holds WHERE book_id = $1 AND member_id = $2`,
			bookID, memberID,
		)
		if err != nil {
			return fmt.Errorf("delete hold: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrHoldNotFound
		}

		_, err = tx.Exec(ctx,
			`UPDATE books SET status = $2 WHERE id = $1 AND status = $3`,
			bookID, string(model.BookStatusAvailable), string(model.BookStatusReserved),
		)
		if err != nil {
			return fmt.Errorf("release book: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// ExpireHolds удаляет истёкшие к моменту now брони и возвращает экземпляры в available.
// Возвращает идентификаторы освобождённых экземпляров.
func (r *PostgresRepository) ExpireHolds(ctx context.Context, now time.Time) ([]int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `DELETE FROM holds WHERE expires_at <= $1 RETURNING book_id`, now)
	if err != nil {
		return nil, fmt.Errorf("delete expired holds: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("collect expired holds: %w", err)
	}

	if len(ids) > 0 {
		_, err = tx.Exec(ctx,
			`UPDATE books SET status = $2 WHERE id = ANY($1) AND status = $3`,
			ids, string(model.BookStatusAvailable), string(model.BookStatusReserved),
		)
		if err != nil {
			return nil, fmt.Errorf("release expired books: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return ids, nil
}

// ListLiveHolds возвращает брони, не истёкшие к моменту now.
func (r *PostgresRepository) ListLiveHolds(ctx context.Context, now time.Time) ([]model.Hold, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT book_id, member_id, created_at, expires_at
		 FROM holds
		 WHERE expires_at > $1
		 ORDER BY expires_at`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("select holds: %w", err)
	}
	return collectHolds(rows)
}

// HoldsByMember возвращает живые брони читателя.
func (r *PostgresRepository) HoldsByMember(ctx context.Context, memberID int64, now time.Time) ([]model.Hold, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT book_id, member_id, created_at, expires_at
		 FROM holds
		 WHERE member_id = $1 AND expires_at > $2
		 ORDER BY expires_at`,
		memberID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("select member holds: %w", err)
	}
	return collectHolds(rows)
}

func collectHolds(rows pgx.Rows) ([]model.Hold, error) {
	defer rows.Close()

	var res []model.Hold
	for rows.Next() {
		var h model.Hold
		if err := rows.Scan(&h.BookID, &h.MemberID, &h.CreatedAt, &h.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan hold: %w", err)
		}
		res = append(res, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CreateDigitalLoan выдаёт цифровой экземпляр без брони.
func (r *PostgresRepository) CreateDigitalLoan(ctx context.Context, bookID, memberID int64, now, dueAt time.Time) (model.Loan, error) {
	loan := model.Loan{BookID: bookID, MemberID: memberID, BorrowedAt: now, DueAt: dueAt}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO loans (book_id, member_id, format, borrowed_at, due_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		bookID, memberID, string(model.BookFormatDigital), now, dueAt,
	).Scan(&loan.ID)
	if err != nil {
		switch pgCode(err) {
		case pgerrcode.UniqueViolation:
			return model.Loan{}, ErrLoanExists
		case pgerrcode.ForeignKeyViolation:
			return model.Loan{}, ErrMemberNotFound
		}
		return model.Loan{}, fmt.Errorf("insert digital loan: %w", err)
	}
	return loan, nil
}

// ReturnLoan закрывает открытую выдачу читателя. Физический экземпляр возвращается в available.
func (r *PostgresRepository) ReturnLoan(ctx context.Context, bookID, memberID int64, now time.Time) (model.Loan, error) {
	var loan model.Loan

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var format string
		loan = model.Loan{}
		err = tx.QueryRow(ctx,
			`UPDATE loans SET returned_at = $3
			 WHERE book_id = $1 AND member_id = $2 AND returned_at IS NULL
			 RETURNING id, book_id, member_id, format, borrowed_at, due_at, returned_at`,
			bookID, memberID, now,
		).Scan(&loan.ID, &loan.BookID, &loan.MemberID, &format, &loan.BorrowedAt, &loan.DueAt, &loan.ReturnedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrLoanNotFound
			}
			return fmt.Errorf("close loan: %w", err)
		}

		if model.BookFormat(format) == model.BookFormatPhysical {
			_, err = tx.Exec(ctx,
				`UPDATE books SET status = $2 WHERE id = $1 AND status = $3`,
				bookID, string(model.BookStatusAvailable), string(model.BookStatusBorrowed),
			)
			if err != nil {
				return fmt.Errorf("release book: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Loan{}, err
	}
	return loan, nil
}

// LoansByMember возвращает выдачи читателя, новые первыми.
func (r *PostgresRepository) LoansByMember(ctx context.Context, memberID int64, openOnly bool) ([]model.Loan, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, book_id, member_id, borrowed_at, due_at, returned_at
		 FROM loans
		 WHERE member_id = $1 AND (NOT $2 OR returned_at IS NULL)
		 ORDER BY borrowed_at DESC`,
		memberID, openOnly,
	)
	if err != nil {
		return nil, fmt.Errorf("select loans: %w", err)
	}
	defer rows.Close()

	var res []model.Loan
	for rows.Next() {
		var l model.Loan
		if err := rows.Scan(&l.ID, &l.BookID, &l.MemberID, &l.BorrowedAt, &l.DueAt, &l.ReturnedAt); err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		res = append(res, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}
