// Package mode decides whether the client works against the finance service
// or from its local cache, and what the user may do in each case.
package mode

// Mode is the connectivity mode of the client.
type Mode int

const (
	Offline Mode = iota
	Online
)

func (m Mode) String() string {
	if m == Online {
		return "online"
	}
	return "offline"
}

// Capabilities lists the actions available to the user.
type Capabilities struct {
	CanAdd                   bool
	CanSelectCategory        bool
	CanDelete                bool
	CanEdit                  bool
	CanManageCategories      bool
	CanAccessMainSections    bool
	CanAccessProfileSettings bool
}

// Capabilities derives the allowed actions from m. Offline the user may only
// record new transactions; anything unknown is treated as offline.
func (m Mode) Capabilities() Capabilities {
	if m == Online {
		return Capabilities{
			CanAdd:                   true,
			CanSelectCategory:        true,
			CanDelete:                true,
			CanEdit:                  true,
			CanManageCategories:      true,
			CanAccessMainSections:    true,
			CanAccessProfileSettings: true,
		}
	}
	return Capabilities{CanAdd: true, CanSelectCategory: true}
}
