// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrBookNotFound возвращается, если экземпляр не найден.
	ErrBookNotFound = errors.New("book not found")
	// ErrBookUnavailable возвращается, если экземпляр не удалось перевести в нужный статус.
	ErrBookUnavailable = errors.New("book is not available")
	// ErrHoldNotFound возвращается, если у читателя нет брони на экземпляр.
	ErrHoldNotFound = errors.New("hold not found")
	// ErrLoanNotFound возвращается, если открытая выдача не найдена.
	ErrLoanNotFound = errors.New("loan not found")
	// ErrLoanExists возвращается при повторной выдаче экземпляра тому же читателю.
	ErrLoanExists = errors.New("book already borrowed by member")
	// ErrMemberExists возвращается при регистрации читателя с уже занятым email.
	ErrMemberExists = errors.New("member already exists")
	// ErrMemberNotFound возвращается, если читатель не найден.
	ErrMemberNotFound = errors.New("member not found")
	// ErrStaffExists возвращается при создании сотрудника с уже занятым email.
	ErrStaffExists = errors.New("staff already exists")
	// ErrStaffNotFound возвращается, если сотрудник не найден.
	ErrStaffNotFound = errors.New("staff not found")
	// ErrNotFound возвращается справочными методами, если запись не найдена.
	ErrNotFound = errors.New("record not found")
	// ErrConflict возвращается при нарушении уникальности справочника.
	ErrConflict = errors.New("record already exists")
	// ErrInvalidReference возвращается, если запись ссылается на несуществующую сущность.
	ErrInvalidReference = errors.New("invalid reference")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	delays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool:   pool,
		delays: []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 1 * time.Second},
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// SchemaVersion возвращает номер последней применённой миграции.
func (r *PostgresRepository) SchemaVersion(ctx context.Context) (int64, error) {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	v, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("get db version: %w", err)
	}
	return v, nil
}

// withRetry повторяет fn при конфликтах сериализации, дедлоках и обрывах соединения.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(r.delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(r.delays) {
			break
		}

		timer := time.NewTimer(r.delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

var connectionErrors = []string{"connection refused", "broken pipe", "connection reset by peer"}

func isConnectionError(err error) bool {
	if pgconn.SafeToRetry(err) {
		return true
	}
	msg := err.Error()
	for _, s := range connectionErrors {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// Ping проверяет доступность БД.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
