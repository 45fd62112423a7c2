// Package errors provides structured error types for the Lua bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: field path, Go/Lua type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhasePush, errors.KindUnsupported).
//		GoType("chan int").
//		Detail("no Lua representation").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Disposed(errors.PhaseState, "state")
//	err := errors.ForeignState(errors.PhasePush, "*bridge.TableHandle")
//
// Kind-only sentinels (ErrDisposed, ErrAlreadyHosted, ErrUnsupported,
// ErrForeignState, ErrInvalidInput) match errors of that kind in any phase:
//
//	if errors.Is(err, lerrors.ErrDisposed) { ... }
//
// Two further types carry VM-originated failures verbatim: LuaError for
// non-ok protected call and load statuses, and PanicError for errors raised
// through the fatal-error hook. Their Error methods return the Lua message
// unchanged.
package errors
