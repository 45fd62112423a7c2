package bridge

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/luabridge/errors"
	"github.com/wippyai/luabridge/native"
	"github.com/wippyai/luabridge/resource"
)

func TestRawRefs(t *testing.T) {
	s := newTestState(t)

	s.Push("pinned")
	key, err := s.NewRef()
	if err != nil {
		t.Fatal(err)
	}
	if key <= 0 {
		t.Fatalf("NewRef() = %d", key)
	}
	if top, _ := s.Top(); top != 0 {
		t.Errorf("NewRef should pop, top = %d", top)
	}

	if err := s.PushRef(key); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.Pop(); v != "pinned" {
		t.Errorf("PushRef() pushed %v", v)
	}

	s.Push(nil)
	nilKey, _ := s.NewRef()
	if nilKey != native.RefNil {
		t.Errorf("NewRef(nil) = %d, want RefNil", nilKey)
	}
	s.PushRef(nilKey)
	if v, _ := s.Pop(); v != nil {
		t.Errorf("PushRef(RefNil) pushed %v", v)
	}

	if err := s.Unref(key); err != nil {
		t.Fatal(err)
	}
	s.Push("reused")
	again, _ := s.NewRef()
	if again != key {
		t.Errorf("released key not reused: got %d, want %d", again, key)
	}
}

func TestReferenceLifecycle(t *testing.T) {
	s := newTestState(t)

	s.Push("value")
	r, err := s.Ref(-1)
	if err != nil {
		t.Fatal(err)
	}
	s.SetTop(0)

	if !r.Valid() || !r.Owned() || r.Host() != s {
		t.Fatal("fresh reference should be a valid owner")
	}
	if err := r.Push(s); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.Pop(); v != "value" {
		t.Errorf("Push() pushed %v", v)
	}
	if s.References() != 1 {
		t.Errorf("References() = %d", s.References())
	}

	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if r.Valid() {
		t.Error("closed reference reports valid")
	}
	if err := r.Push(s); !errors.Is(err, errors.ErrDisposed) {
		t.Errorf("Push() after Close = %v", err)
	}
	if s.References() != 0 {
		t.Errorf("References() after Close = %d", s.References())
	}

	var nilRef *Reference
	if err := nilRef.Close(); err != nil {
		t.Errorf("nil Close() = %v", err)
	}
	s.Push(nil)
	if _, err := s.Ref(-1); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Ref(nil) = %v", err)
	}
}

func TestAliasDefersRelease(t *testing.T) {
	s := newTestState(t)

	tbl, err := s.NewTable()
	if err != nil {
		t.Fatal(err)
	}
	tbl.Set(1, "one")
	alias, err := tbl.Alias()
	if err != nil {
		t.Fatal(err)
	}
	if alias.Owned() {
		t.Error("alias reports owned")
	}

	tbl.Close()
	v, err := alias.Index(1)
	if err != nil {
		t.Fatalf("alias unusable after owner close: %v", err)
	}
	if v != "one" {
		t.Errorf("Index(1) = %v", v)
	}

	alias.Close()
	if _, err := alias.Index(1); !errors.Is(err, errors.ErrDisposed) {
		t.Errorf("Index() after both closed = %v", err)
	}
	if s.References() != 0 {
		t.Errorf("References() = %d", s.References())
	}
}

type eventRecorder struct {
	types []resource.EventType
}

func (r *eventRecorder) OnResourceEvent(e resource.Event) {
	r.types = append(r.types, e.Type)
}

func TestReferenceEvents(t *testing.T) {
	s := newTestState(t)
	rec := &eventRecorder{}
	s.Subscribe(rec)

	tbl, err := s.NewTable()
	if err != nil {
		t.Fatal(err)
	}
	alias, _ := tbl.Alias()
	tbl.Close()
	alias.Close()
	s.Unsubscribe(rec)
	if _, err := s.NewTable(); err != nil {
		t.Fatal(err)
	}

	want := []resource.EventType{
		resource.EventCreated,
		resource.EventBorrowed,
		resource.EventBorrowReturned,
		resource.EventDropped,
	}
	if diff := cmp.Diff(want, rec.types); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestReferencesInvalidatedByClose(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatal(err)
	}
	tbl, err := s.NewTable()
	if err != nil {
		t.Fatal(err)
	}

	rec := &eventRecorder{}
	s.Subscribe(rec)

	s.Close()
	if tbl.Valid() {
		t.Error("reference valid after state close")
	}
	if _, err := tbl.Get("x"); !errors.Is(err, errors.ErrDisposed) {
		t.Errorf("Get() after close = %v", err)
	}
	if err := tbl.Close(); err != nil {
		t.Errorf("Close() after state close = %v", err)
	}
	if diff := cmp.Diff([]resource.EventType{resource.EventInvalidated}, rec.types); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestTypedAccessors(t *testing.T) {
	s := newTestState(t)
	if _, err := s.DoString(`
		t = {}
		f = function() end
		co = coroutine.create(f)
	`); err != nil {
		t.Fatal(err)
	}
	s.GetGlobal("x") // nil, no reference
	s.n.GetGlobal("t")
	s.n.GetGlobal("f")
	s.n.GetGlobal("co")
	s.n.NewUserdata(42)
	s.n.NewUserdata(nil)

	if v, _ := s.ToTable(1); v == nil {
		t.Error("ToTable(table) = nil")
	}
	if v, _ := s.ToTable(2); v != nil {
		t.Error("ToTable(function) should be nil")
	}
	if v, _ := s.ToFunction(2); v == nil {
		t.Error("ToFunction(function) = nil")
	}
	if v, _ := s.ToThread(3); v == nil {
		t.Error("ToThread(thread) = nil")
	}
	if v, _ := s.ToUserData(4); v == nil {
		t.Error("ToUserData(userdata) = nil")
	}
	if v, _ := s.ToUserData(1); v != nil {
		t.Error("ToUserData(table) should be nil")
	}

	if v, _ := s.ToValue(5); v != nil {
		t.Errorf("ToValue(unbound userdata) = %v, want payload nil", v)
	}
	ud, _ := s.ToValue(4)
	h, ok := ud.(*UserDataHandle)
	if !ok {
		t.Fatalf("ToValue(userdata) = %T", ud)
	}
	if p, _ := h.Value(); p != 42 {
		t.Errorf("Value() = %v", p)
	}
}

func TestNewUserData(t *testing.T) {
	s := newTestState(t)

	if _, err := s.NewUserData(nil); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("NewUserData(nil) = %v", err)
	}

	type box struct{ n int }
	u, err := s.NewUserData(&box{3})
	if err != nil {
		t.Fatal(err)
	}
	defer u.Close()
	v, err := u.Value()
	if err != nil {
		t.Fatal(err)
	}
	if b, ok := v.(*box); !ok || b.n != 3 {
		t.Errorf("Value() = %#v", v)
	}
}

func TestTableProxy(t *testing.T) {
	s := newTestState(t)
	out, err := s.DoString(`return setmetatable({ a = 1, b = 2, c = 3 }, {
		__index = function(_, k) return "default:" .. k end,
	})`)
	if err != nil {
		t.Fatal(err)
	}
	tbl := out[0].(*TableHandle)
	defer tbl.Close()

	if v, _ := tbl.Field("a"); v != float64(1) {
		t.Errorf("Field(a) = %v", v)
	}
	if v, _ := tbl.Field("zz"); v != "default:zz" {
		t.Errorf("Field(zz) = %v, want metamethod result", v)
	}
	if err := tbl.SetIndex(1, "first"); err != nil {
		t.Fatal(err)
	}
	if n, _ := tbl.Len(); n != 1 {
		t.Errorf("Len() = %d", n)
	}

	var keys []string
	err = tbl.ForEach(func(k, v any) error {
		if str, ok := k.(string); ok {
			keys = append(keys, str)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(keys)
	if diff := cmp.Diff([]string{"a", "b", "c"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	stop := errors.InvalidInput(errors.PhaseRef, "stop")
	count := 0
	err = tbl.ForEach(func(k, v any) error {
		count++
		return stop
	})
	if err != stop || count != 1 {
		t.Errorf("ForEach stop: err = %v, count = %d", err, count)
	}
	if top, _ := s.Top(); top != 0 {
		t.Errorf("ForEach left %d values", top)
	}
}

func TestTableProxyErrors(t *testing.T) {
	s := newTestState(t)
	out, err := s.DoString(`return setmetatable({}, {
		__newindex = function() error("read only", 0) end,
	})`)
	if err != nil {
		t.Fatal(err)
	}
	tbl := out[0].(*TableHandle)
	defer tbl.Close()

	err = tbl.Set("k", 1)
	var lerr *errors.LuaError
	if !errors.As(err, &lerr) {
		t.Fatalf("Set() error = %v, want LuaError", err)
	}
	if lerr.Message != "read only" {
		t.Errorf("Message = %q", lerr.Message)
	}
	if top, _ := s.Top(); top != 0 {
		t.Errorf("failed Set left %d values", top)
	}

	if err := tbl.Set(struct{}{}, 1); !errors.Is(err, errors.ErrUnsupported) {
		t.Errorf("Set(unsupported key) = %v", err)
	}
}

func TestThreadHandleState(t *testing.T) {
	s := newTestState(t)

	th, err := s.NewThread()
	if err != nil {
		t.Fatal(err)
	}
	s.Push(th)
	h, err := s.ToThread(-1)
	if err != nil || h == nil {
		t.Fatalf("ToThread() = %v, %v", h, err)
	}
	defer h.Close()
	got, err := h.State()
	if err != nil {
		t.Fatal(err)
	}
	if got != th {
		t.Error("State() should return the registered thread")
	}

	out, err := s.DoString("return coroutine.create(function() end)")
	if err != nil {
		t.Fatal(err)
	}
	co := out[0].(*ThreadHandle)
	defer co.Close()
	view, err := co.State()
	if err != nil {
		t.Fatal(err)
	}
	if !view.IsThread() || view.Root() != s {
		t.Error("coroutine view should be a thread of the root")
	}
}
