// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidID возвращается, если идентификатор не является положительным целым числом.
var ErrInvalidID = errors.New("invalid id")

// NormalizeISBN удаляет дефисы и пробелы и приводит контрольный символ X к верхнему регистру.
func NormalizeISBN(isbn string) string {
	var b strings.Builder
	b.Grow(len(isbn))
	for _, ch := range isbn {
		switch {
		case ch == '-' || ch == ' ':
			continue
		case ch == 'x':
			b.WriteRune('X')
		default:
			b.WriteRune(ch)
		}
	}
	return b.String()
}

// IsValidISBN проверяет контрольную сумму ISBN-10 или ISBN-13.
func IsValidISBN(isbn string) bool {
	s := NormalizeISBN(isbn)
	switch len(s) {
	case 10:
		return isValidISBN10(s)
	case 13:
		return isValidISBN13(s)
	}
	return false
}

func isValidISBN10(s string) bool {
	sum := 0
	for i := 0; i < 10; i++ {
		ch := s[i]
		var digit int
		switch {
		case ch >= '0' && ch <= '9':
			digit = int(ch - '0')
		case ch == 'X' && i == 9:
			digit = 10
		default:
			return false
		}
		sum += digit * (10 - i)
	}
	return sum%11 == 0
}

func isValidISBN13(s string) bool {
	sum := 0
	for i := 0; i < 13; i++ {
		ch := s[i]
		if ch < '0' || ch > '9' {
			return false
		}
		digit := int(ch - '0')
		if i%2 == 1 {
			digit *= 3
		}
		sum += digit
	}
	return sum%10 == 0
}

// ParseID разбирает положительный целочисленный идентификатор.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidID
	}
	return id, nil
}
