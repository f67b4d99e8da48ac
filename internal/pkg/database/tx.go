package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	apperror "goloja/internal/errors"
)

// DBTX é o subconjunto comum de *sql.DB e *sql.Tx usado pelos repositórios.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type txKey struct{}

// Conn devolve a transação ativa no contexto ou, na falta dela, o próprio pool.
// Assim um mesmo método de repositório participa da transação do serviço que o chamou.
func Conn(ctx context.Context, db *sql.DB) DBTX {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

// InTx informa se o contexto já carrega uma transação.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*sql.Tx)
	return ok
}

// TxManager abre transações no PostgreSQL e as propaga pelo contexto.
type TxManager struct {
	DB *sql.DB
}

// NewTxManager cria o gerenciador de transações.
func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{DB: db}
}

// WithinTx executa fn dentro de uma transação READ COMMITTED.
// Chamadas aninhadas reaproveitam a transação externa.
// Ganchos registrados com AfterCommit rodam depois do COMMIT externo.
// Se fn retornar erro, a transação é desfeita. Falha no COMMIT (ou contexto expirado
// durante ele) é reportada como ErrOutcomeUnknown: o efeito pode ou não ter sido gravado.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if InTx(ctx) {
		return fn(ctx)
	}

	tx, err := m.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return apperror.NewDBError("falha ao iniciar transação", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	hookCtx, runHooks := WithCommitHooks(ctx)
	if err := fn(context.WithValue(hookCtx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		// O efeito pode ter sido gravado; os ganchos (invalidação de cache) também rodam.
		runHooks()
		return apperror.NewOutcomeUnknown("commit", err)
	}
	runHooks()
	return nil
}
