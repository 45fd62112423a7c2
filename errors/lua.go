package errors

// UnknownLuaError is the message used when a failed call leaves a
// non-string error value on the stack.
const UnknownLuaError = "Unknown Lua error."

// UnknownPanic is the message of the default panic hook when the stack top
// holds no string.
const UnknownPanic = "unknown error"

// LuaError is returned when the VM reports a non-ok status from a protected
// call or a chunk load. Error returns Message unchanged.
type LuaError struct {
	// Value is the converted error object, if it had a Go representation.
	Value   any
	Message string
	// Status is the native status code (see native.Status).
	Status int
}

func (e *LuaError) Error() string {
	return e.Message
}

// Is reports whether target is a *LuaError.
func (e *LuaError) Is(target error) bool {
	_, ok := target.(*LuaError)
	return ok
}

// PanicError is raised by the default panic hook when an error reaches the
// top level outside any protected call.
type PanicError struct {
	Message string
	// Aborted is set when a hook returned instead of unwinding.
	Aborted bool
}

func (e *PanicError) Error() string {
	return e.Message
}

// Is reports whether target is a *PanicError.
func (e *PanicError) Is(target error) bool {
	_, ok := target.(*PanicError)
	return ok
}

// Abort creates the error raised when a panic hook returns control to the VM.
func Abort(message string) *PanicError {
	if message == "" {
		message = UnknownPanic
	}
	return &PanicError{
		Message: "unprotected error in call to Lua API (" + message + ")",
		Aborted: true,
	}
}
