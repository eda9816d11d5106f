package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmeshcher/library-system/internal/model"
	"github.com/mmeshcher/library-system/internal/validation"
)

// SearchBooks возвращает страницу каталога.
func (s *Service) SearchBooks(ctx context.Context, f model.BookFilter) ([]model.Book, error) {
	f.Query = strings.TrimSpace(f.Query)
	return s.repo.SearchBooks(ctx, f)
}

// GetBook возвращает экземпляр по идентификатору.
func (s *Service) GetBook(ctx context.Context, id int64) (*model.Book, error) {
	return s.repo.GetBook(ctx, id)
}

// CreateBook добавляет экземпляр и возвращает его с разрешёнными справочниками.
func (s *Service) CreateBook(ctx context.Context, b model.Book) (*model.Book, error) {
	if b.ISBN != "" {
		b.ISBN = validation.NormalizeISBN(b.ISBN)
		if !validation.IsValidISBN(b.ISBN) {
			return nil, ErrInvalidISBN
		}
	}

	id, err := s.repo.CreateBook(ctx, b)
	if err != nil {
		return nil, err
	}
	return s.repo.GetBook(ctx, id)
}

// UpdateBook обновляет описание экземпляра.
func (s *Service) UpdateBook(ctx context.Context, b model.Book) (*model.Book, error) {
	if b.ISBN != "" {
		b.ISBN = validation.NormalizeISBN(b.ISBN)
		if !validation.IsValidISBN(b.ISBN) {
			return nil, ErrInvalidISBN
		}
	}

	if err := s.repo.UpdateBook(ctx, b); err != nil {
		return nil, err
	}
	return s.repo.GetBook(ctx, b.ID)
}

// SetBookLost помечает экземпляр утерянным или найденным.
func (s *Service) SetBookLost(ctx context.Context, id int64, lost bool) error {
	return s.repo.SetBookLost(ctx, id, lost)
}

// DeleteBook удаляет экземпляр.
func (s *Service) DeleteBook(ctx context.Context, id int64) error {
	return s.repo.DeleteBook(ctx, id)
}

// ImportByISBN создаёт экземпляр по метаданным Open Library. Автор создаётся, если его ещё нет.
func (s *Service) ImportByISBN(ctx context.Context, isbn string, branchID *int64, format model.BookFormat) (*model.Book, error) {
	if s.metadata == nil {
		return nil, ErrImportUnavailable
	}

	isbn = validation.NormalizeISBN(isbn)
	if !validation.IsValidISBN(isbn) {
		return nil, ErrInvalidISBN
	}

	edition, err := s.metadata.Lookup(ctx, isbn)
	if err != nil {
		return nil, fmt.Errorf("lookup isbn %s: %w", isbn, err)
	}

	book := model.Book{
		Title:    edition.Title,
		ISBN:     isbn,
		BranchID: branchID,
		Format:   format,
	}
	if edition.Subtitle != "" {
		book.Title = edition.Title + ": " + edition.Subtitle
	}

	if name := edition.AuthorName(); name != "" {
		authorID, err := s.ensureAuthor(ctx, name)
		if err != nil {
			return nil, err
		}
		book.AuthorID = &authorID
	}

	id, err := s.repo.CreateBook(ctx, book)
	if err != nil {
		return nil, err
	}
	return s.repo.GetBook(ctx, id)
}

func (s *Service) ensureAuthor(ctx context.Context, name string) (int64, error) {
	a, err := s.repo.FindAuthorByName(ctx, name)
	if err == nil {
		return a.ID, nil
	}
	if !isNotFound(err) {
		return 0, err
	}
	return s.repo.CreateAuthor(ctx, model.Author{Name: name})
}

// ListAuthors возвращает авторов.
func (s *Service) ListAuthors(ctx context.Context) ([]model.Author, error) {
	return s.repo.ListAuthors(ctx)
}

// CreateAuthor добавляет автора.
func (s *Service) CreateAuthor(ctx context.Context, a model.Author) (int64, error) {
	return s.repo.CreateAuthor(ctx, a)
}

// UpdateAuthor обновляет автора.
func (s *Service) UpdateAuthor(ctx context.Context, a model.Author) error {
	return s.repo.UpdateAuthor(ctx, a)
}

// DeleteAuthor удаляет автора.
func (s *Service) DeleteAuthor(ctx context.Context, id int64) error {
	return s.repo.DeleteAuthor(ctx, id)
}

// ListCategories возвращает рубрики.
func (s *Service) ListCategories(ctx context.Context) ([]model.Category, error) {
	return s.repo.ListCategories(ctx)
}

// CreateCategory добавляет рубрику.
func (s *Service) CreateCategory(ctx context.Context, c model.Category) (int64, error) {
	return s.repo.CreateCategory(ctx, c)
}

// UpdateCategory переименовывает рубрику.
func (s *Service) UpdateCategory(ctx context.Context, c model.Category) error {
	return s.repo.UpdateCategory(ctx, c)
}

// DeleteCategory удаляет рубрику.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	return s.repo.DeleteCategory(ctx, id)
}

// ListBranches возвращает филиалы.
func (s *Service) ListBranches(ctx context.Context) ([]model.Branch, error) {
	return s.repo.ListBranches(ctx)
}

// CreateBranch добавляет филиал.
func (s *Service) CreateBranch(ctx context.Context, b model.Branch) (int64, error) {
	return s.repo.CreateBranch(ctx, b)
}

// UpdateBranch обновляет филиал.
func (s *Service) UpdateBranch(ctx context.Context, b model.Branch) error {
	return s.repo.UpdateBranch(ctx, b)
}

// DeleteBranch удаляет филиал.
func (s *Service) DeleteBranch(ctx context.Context, id int64) error {
	return s.repo.DeleteBranch(ctx, id)
}
