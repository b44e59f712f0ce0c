package http

import (
	"context"
	"log/slog"

	"github.com/StepsArtworks/rollcall/internal/application"
	"github.com/StepsArtworks/rollcall/internal/logging"
)

type contextKey string

const (
	accountContextKey    contextKey = "account"
	departmentContextKey contextKey = "department"
)

// ContextWithAccount returns a derived context containing the authenticated account.
func ContextWithAccount(ctx context.Context, account application.Account) context.Context {
	return context.WithValue(ctx, accountContextKey, account)
}

// AccountFromContext extracts the authenticated account from context if available.
func AccountFromContext(ctx context.Context) (application.Account, bool) {
	account, ok := ctx.Value(accountContextKey).(application.Account)
	return account, ok
}

// ContextWithDepartment injects the department resolved from the request path.
func ContextWithDepartment(ctx context.Context, dept application.Department) context.Context {
	return context.WithValue(ctx, departmentContextKey, dept)
}

// DepartmentFromContext extracts a department previously associated with the context.
func DepartmentFromContext(ctx context.Context) (application.Department, bool) {
	dept, ok := ctx.Value(departmentContextKey).(application.Department)
	return dept, ok
}

// ContextWithLogger re-exports the logging package helper for middleware use.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext extracts the request-scoped logger, if any.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}
