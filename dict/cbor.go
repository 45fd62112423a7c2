package dict

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/wippyai/luabridge/bridge"
	"github.com/wippyai/luabridge/errors"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dict: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal encodes converted values as canonical CBOR. Proxies have no
// encoding and are rejected.
func Marshal(v any) ([]byte, error) {
	if err := checkEncodable(v, 0); err != nil {
		return nil, err
	}
	data, err := cborEncMode.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConvert, errors.KindInvalidData, err, "encode cbor")
	}
	return data, nil
}

// Unmarshal decodes CBOR into plain Go values: maps decode as map[any]any,
// arrays as []any.
func Unmarshal(data []byte) (any, error) {
	var v any
	if err := cbor.Unmarshal(data, &v); err != nil {
		return nil, errors.Wrap(errors.PhaseConvert, errors.KindInvalidData, err, "decode cbor")
	}
	return v, nil
}

func checkEncodable(v any, depth int) error {
	if depth > DefaultMaxDepth {
		return errors.InvalidData(errors.PhaseConvert, nil, "value nested too deeply")
	}
	switch v := v.(type) {
	case *bridge.TableHandle, *bridge.FunctionHandle, *bridge.UserDataHandle, *bridge.ThreadHandle, *bridge.Reference:
		return errors.New(errors.PhaseConvert, errors.KindUnsupported).
			GoType(fmt.Sprintf("%T", v)).
			Detail("VM references cannot be encoded").
			Build()
	case []any:
		for _, e := range v {
			if err := checkEncodable(e, depth+1); err != nil {
				return err
			}
		}
	case map[any]any:
		for k, e := range v {
			if err := checkEncodable(k, depth+1); err != nil {
				return err
			}
			if err := checkEncodable(e, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// Snapshot converts the data table at idx and encodes it.
func (e *Extension) Snapshot(s *bridge.State, idx int) ([]byte, error) {
	n, err := s.Native()
	if err != nil {
		return nil, err
	}
	v, ok, err := e.Convert(s, idx, n.Type(idx))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New(errors.PhaseConvert, errors.KindTypeMismatch).
			LuaType(n.Type(idx).String()).
			Detail("snapshot needs a table without a metatable").
			Build()
	}
	return Marshal(v)
}

// Restore decodes a snapshot and pushes it onto the stack.
func (e *Extension) Restore(s *bridge.State, data []byte) error {
	v, err := Unmarshal(data)
	if err != nil {
		return err
	}
	handled, err := e.Push(s, v)
	if err != nil || handled {
		return err
	}
	return s.Push(v)
}
