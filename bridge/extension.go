package bridge

import "github.com/wippyai/luabridge/native"

// A host extension is any value passed as Config.Extension. The bridge
// discovers what it can do by type assertion against the interfaces below;
// an extension implements only the ones it needs.

// Pusher pushes Go values the bridge has no representation for. It reports
// whether it handled v; when it did, exactly one value must have been pushed.
type Pusher interface {
	Push(s *State, v any) (bool, error)
}

// Converter converts tables, functions, threads, channels and userdata to
// Go values before the bridge's own conversion runs.
type Converter interface {
	Convert(s *State, idx int, tp native.Type) (any, bool, error)
}

// TableProvider supplies the table proxy returned by ToTable.
type TableProvider interface {
	ProvideTable(s *State, idx int) (*TableHandle, bool)
}

// UserDataProvider supplies the userdata proxy returned by ToUserData.
type UserDataProvider interface {
	ProvideUserData(s *State, idx int) (*UserDataHandle, bool)
}

// FunctionProvider supplies the function proxy returned by ToFunction.
type FunctionProvider interface {
	ProvideFunction(s *State, idx int) (*FunctionHandle, bool)
}
