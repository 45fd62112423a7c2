// Package resource tracks host-held references into a VM's registry.
//
// A reference is an integer key under which a VM value is pinned in the
// registry. The host may hold it as long as it likes, so releasing it must
// happen exactly once and never while someone still uses it. Table is the
// arena that enforces this:
//
//	table := resource.NewTable()
//
//	// Track a key obtained from the registry
//	table.Own(h, resource.KindTable, proxy)
//
//	// Non-owning aliases
//	table.Borrow(h)
//	table.Drop(h)          // false: an alias is outstanding
//	table.ReturnBorrow(h)  // true: release the registry slot now
//
// # Observers
//
// Observers see every lifecycle step:
//
//	type leakCounter struct{ live int }
//
//	func (c *leakCounter) OnResourceEvent(e resource.Event) {
//		switch e.Type {
//		case resource.EventCreated:
//			c.live++
//		case resource.EventDropped, resource.EventInvalidated:
//			c.live--
//		}
//	}
//
// # Closing
//
// When the VM goes away every key becomes meaningless. Close invalidates all
// entries at once and returns their keys; registry slots need no release at
// that point since the registry itself is gone.
package resource
