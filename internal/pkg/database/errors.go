package database

import (
	"errors"

	"github.com/lib/pq"
)

// Códigos SQLSTATE usados pelos repositórios.
const (
	uniqueViolation = "23505"
	checkViolation  = "23514"
)

// IsUniqueViolation informa se err é uma violação de índice único.
// constraint vazio aceita qualquer índice.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// IsCheckViolation informa se err é uma violação de CHECK (ex.: stock >= 0).
func IsCheckViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == checkViolation
}
