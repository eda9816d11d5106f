package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/library-system/internal/model"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var pg = goqu.Dialect("postgres")

// likeEscaper экранирует спецсимволы LIKE; в PostgreSQL по умолчанию ESCAPE '\'.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func bookSelect() *goqu.SelectDataset {
	return pg.From(goqu.T("books").As("b")).
		LeftJoin(goqu.T("authors").As("a"), goqu.On(goqu.I("a.id").Eq(goqu.I("b.author_id")))).
		LeftJoin(goqu.T("categories").As("c"), goqu.On(goqu.I("c.id").Eq(goqu.I("b.category_id")))).
		LeftJoin(goqu.T("branches").As("br"), goqu.On(goqu.I("br.id").Eq(goqu.I("b.branch_id")))).
		Select(
			goqu.I("b.id"),
			goqu.I("b.title"),
			goqu.I("b.isbn"),
			goqu.I("b.author_id"),
			goqu.COALESCE(goqu.I("a.name"), "").As("author_name"),
			goqu.I("b.category_id"),
			goqu.COALESCE(goqu.I("c.name"), "").As("category_name"),
			goqu.I("b.branch_id"),
			goqu.COALESCE(goqu.I("br.name"), "").As("branch_name"),
			goqu.I("b.status"),
			goqu.I("b.format"),
			goqu.I("b.created_at"),
		)
}

// bookConditions строит условия поиска по фильтру каталога.
func bookConditions(f model.BookFilter) []exp.Expression {
	var where []exp.Expression

	if f.Query != "" {
		pattern := "%" + likeEscaper.Replace(f.Query) + "%"
		where = append(where, goqu.Or(
			goqu.I("b.title").ILike(pattern),
			goqu.I("a.name").ILike(pattern),
			goqu.I("b.isbn").Eq(f.Query),
		))
	}
	if f.Status != "" {
		where = append(where, goqu.I("b.status").Eq(string(f.Status)))
	}
	if f.Format != "" {
		where = append(where, goqu.I("b.format").Eq(string(f.Format)))
	}
	if f.BranchID != nil {
		where = append(where, goqu.I("b.branch_id").Eq(*f.BranchID))
	}
	if f.CategoryID != nil {
		where = append(where, goqu.I("b.category_id").Eq(*f.CategoryID))
	}
	if f.AuthorID != nil {
		where = append(where, goqu.I("b.author_id").Eq(*f.AuthorID))
	}

	return where
}

func pageBounds(limit, offset int) (uint, uint) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return uint(limit), uint(offset)
}

// SearchBooks возвращает страницу каталога, удовлетворяющую фильтру.
func (r *PostgresRepository) SearchBooks(ctx context.Context, f model.BookFilter) ([]model.Book, error) {
	limit, offset := pageBounds(f.Limit, f.Offset)

	query, args, err := bookSelect().
		Where(bookConditions(f)...).
		Order(goqu.I("b.id").Asc()).
		Limit(limit).
		Offset(offset).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build search query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select books: %w", err)
	}
	defer rows.Close()

	var res []model.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// GetBook возвращает экземпляр по идентификатору.
func (r *PostgresRepository) GetBook(ctx context.Context, id int64) (*model.Book, error) {
	query, args, err := bookSelect().
		Where(goqu.I("b.id").Eq(id)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build book query: %w", err)
	}

	b, err := scanBook(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	return &b, nil
}

func scanBook(row pgx.Row) (model.Book, error) {
	var (
		b      model.Book
		status string
		format string
	)
	err := row.Scan(
		&b.ID, &b.Title, &b.ISBN,
		&b.AuthorID, &b.AuthorName,
		&b.CategoryID, &b.Category,
		&b.BranchID, &b.Branch,
		&status, &format, &b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Book{}, err
		}
		return model.Book{}, fmt.Errorf("scan book: %w", err)
	}
	b.Status = model.BookStatus(status)
	b.Format = model.BookFormat(format)
	return b, nil
}

// CreateBook добавляет экземпляр в каталог в статусе available.
func (r *PostgresRepository) CreateBook(ctx context.Context, b model.Book) (int64, error) {
	format := b.Format
	if format == "" {
		format = model.BookFormatPhysical
	}

	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO books (title, isbn, author_id, category_id, branch_id, status, format)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		b.Title, b.ISBN, b.AuthorID, b.CategoryID, b.BranchID,
		string(model.BookStatusAvailable), string(format),
	).Scan(&id)
	if err != nil {
		if pgCode(err) == pgerrcode.ForeignKeyViolation {
			return 0, ErrInvalidReference
		}
		return 0, fmt.Errorf("insert book: %w", err)
	}
	return id, nil
}

// UpdateBook обновляет описательные поля экземпляра. Статус меняется только через брони и выдачи.
func (r *PostgresRepository) UpdateBook(ctx context.Context, b model.Book) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE books
		 SET title = $2, isbn = $3, author_id = $4, category_id = $5, branch_id = $6
		 WHERE id = $1`,
		b.ID, b.Title, b.ISBN, b.AuthorID, b.CategoryID, b.BranchID,
	)
	if err != nil {
		if pgCode(err) == pgerrcode.ForeignKeyViolation {
			return ErrInvalidReference
		}
		return fmt.Errorf("update book: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrBookNotFound
	}
	return nil
}

// SetBookLost помечает свободный экземпляр утерянным или возвращает найденный в available.
func (r *PostgresRepository) SetBookLost(ctx context.Context, id int64, lost bool) error {
	from, to := model.BookStatusAvailable, model.BookStatusLost
	if !lost {
		from, to = model.BookStatusLost, model.BookStatusAvailable
	}

	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE books SET status = $2 WHERE id = $1 AND status = $3`,
		id, string(to), string(from),
	)
	if err != nil {
		return fmt.Errorf("set book lost: %w", err)
	}
	if cmdTag.RowsAffected() == 1 {
		return nil
	}

	if _, err := r.GetBook(ctx, id); err != nil {
		return err
	}
	return ErrBookUnavailable
}

// DeleteBook удаляет экземпляр вместе с историей выдач. Забронированный или выданный
// экземпляр удалить нельзя.
func (r *PostgresRepository) DeleteBook(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx,
		`DELETE FROM books WHERE id = $1 AND status IN ($2, $3)`,
		id, string(model.BookStatusAvailable), string(model.BookStatusLost),
	)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if cmdTag.RowsAffected() == 1 {
		return nil
	}

	if _, err := r.GetBook(ctx, id); err != nil {
		return err
	}
	return ErrBookUnavailable
}
