package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/library-system/internal/model"
)

// mapWriteErr переводит ошибки записи справочников в доменные.
func mapWriteErr(op string, err error) error {
	switch pgCode(err) {
	case pgerrcode.UniqueViolation:
		return ErrConflict
	case pgerrcode.ForeignKeyViolation:
		return ErrInvalidReference
	}
	return fmt.Errorf("%s: %w", op, err)
}

func affectedOne(op string, cmdTag pgconn.CommandTag, err error) error {
	if err != nil {
		return mapWriteErr(op, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// CreateAuthor добавляет автора.
func (r *PostgresRepository) CreateAuthor(ctx context.Context, a model.Author) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO authors (name, bio) VALUES ($1, $2) RETURNING id`, a.Name, a.Bio,
	).Scan(&id)
	if err != nil {
		return 0, mapWriteErr("insert author", err)
	}
	return id, nil
}

// FindAuthorByName возвращает автора с точно совпадающим именем.
func (r *PostgresRepository) FindAuthorByName(ctx context.Context, name string) (*model.Author, error) {
	var a model.Author
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, bio FROM authors WHERE name = $1 ORDER BY id LIMIT 1`, name,
	).Scan(&a.ID, &a.Name, &a.Bio)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// ListAuthors возвращает всех авторов.
func (r *PostgresRepository) ListAuthors(ctx context.Context) ([]model.Author, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, bio FROM authors ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select authors: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Author, error) {
		var a model.Author
		err := row.Scan(&a.ID, &a.Name, &a.Bio)
		return a, err
	})
}

// UpdateAuthor обновляет автора.
func (r *PostgresRepository) UpdateAuthor(ctx context.Context, a model.Author) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE authors SET name = $2, bio = $3 WHERE id = $1`, a.ID, a.Name, a.Bio)
	return affectedOne("update author", cmdTag, err)
}

// DeleteAuthor удаляет автора; его книги остаются без автора.
func (r *PostgresRepository) DeleteAuthor(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM authors WHERE id = $1`, id)
	return affectedOne("delete author", cmdTag, err)
}

// CreateCategory добавляет рубрику.
func (r *PostgresRepository) CreateCategory(ctx context.Context, c model.Category) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO categories (name) VALUES ($1) RETURNING id`, c.Name,
	).Scan(&id)
	if err != nil {
		return 0, mapWriteErr("insert category", err)
	}
	return id, nil
}

// ListCategories возвращает все рубрики.
func (r *PostgresRepository) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Category, error) {
		var c model.Category
		err := row.Scan(&c.ID, &c.Name)
		return c, err
	})
}

// UpdateCategory переименовывает рубрику.
func (r *PostgresRepository) UpdateCategory(ctx context.Context, c model.Category) error {
	cmdTag, err := r.pool.Exec(ctx, `UPDATE categories SET name = $2 WHERE id = $1`, c.ID, c.Name)
	return affectedOne("update category", cmdTag, err)
}

// DeleteCategory удаляет рубрику.
func (r *PostgresRepository) DeleteCategory(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	return affectedOne("delete category", cmdTag, err)
}

// CreateBranch добавляет филиал.
func (r *PostgresRepository) CreateBranch(ctx context.Context, b model.Branch) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO branches (name, address) VALUES ($1, $2) RETURNING id`, b.Name, b.Address,
	).Scan(&id)
	if err != nil {
		return 0, mapWriteErr("insert branch", err)
	}
	return id, nil
}

// ListBranches возвращает все филиалы.
func (r *PostgresRepository) ListBranches(ctx context.Context) ([]model.Branch, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, address FROM branches ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select branches: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Branch, error) {
		var b model.Branch
		err := row.Scan(&b.ID, &b.Name, &b.Address)
		return b, err
	})
}

// UpdateBranch обновляет филиал.
func (r *PostgresRepository) UpdateBranch(ctx context.Context, b model.Branch) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE branches SET name = $2, address = $3 WHERE id = $1`, b.ID, b.Name, b.Address)
	return affectedOne("update branch", cmdTag, err)
}

// DeleteBranch удаляет филиал.
func (r *PostgresRepository) DeleteBranch(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM branches WHERE id = $1`, id)
	return affectedOne("delete branch", cmdTag, err)
}

// CreatePackage добавляет тариф.
func (r *PostgresRepository) CreatePackage(ctx context.Context, p model.Package) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO packages (name, duration_days, price_cents) VALUES ($1, $2, $3) RETURNING id`,
		p.Name, p.DurationDays, p.PriceCents,
	).Scan(&id)
	if err != nil {
		return 0, mapWriteErr("insert package", err)
	}
	return id, nil
}

// GetPackage возвращает тариф по идентификатору.
func (r *PostgresRepository) GetPackage(ctx context.Context, id int64) (*model.Package, error) {
	var p model.Package
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, duration_days, price_cents FROM packages WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.DurationDays, &p.PriceCents)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// ListPackages возвращает все тарифы.
func (r *PostgresRepository) ListPackages(ctx context.Context) ([]model.Package, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, duration_days, price_cents FROM packages ORDER BY duration_days`)
	if err != nil {
		return nil, fmt.Errorf("select packages: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Package, error) {
		var p model.Package
		err := row.Scan(&p.ID, &p.Name, &p.DurationDays, &p.PriceCents)
		return p, err
	})
}

// UpdatePackage обновляет тариф.
func (r *PostgresRepository) UpdatePackage(ctx context.Context, p model.Package) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE packages SET name = $2, duration_days = $3, price_cents = $4 WHERE id = $1`,
		p.ID, p.Name, p.DurationDays, p.PriceCents)
	return affectedOne("update package", cmdTag, err)
}

// DeletePackage удаляет тариф.
func (r *PostgresRepository) DeletePackage(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM packages WHERE id = $1`, id)
	return affectedOne("delete package", cmdTag, err)
}
