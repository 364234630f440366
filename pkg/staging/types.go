package staging

// Category identifies one staged-change ledger within a session document.
type Category string

const (
	CategoryUsers    Category = "users"
	CategoryRoles    Category = "roles"
	CategoryDevices  Category = "devices"
	CategorySettings Category = "settingAndPolicies"
)

// Categories lists all ledger categories in document order.
func Categories() []Category {
	return []Category{CategoryUsers, CategoryRoles, CategoryDevices, CategorySettings}
}

// Valid reports whether the category is one of the known ledgers.
func (c Category) Valid() bool {
	switch c {
	case CategoryUsers, CategoryRoles, CategoryDevices, CategorySettings:
		return true
	}
	return false
}

// NaturalKeyField returns the wire name of the field carrying the category's
// human-meaningful identity, used for duplicate and collision detection.
func (c Category) NaturalKeyField() string {
	if c == CategoryUsers {
		return "username"
	}
	return "name"
}

// EntityName returns the singular noun used in conflict messages.
func (c Category) EntityName() string {
	switch c {
	case CategoryUsers:
		return "user"
	case CategoryRoles:
		return "role"
	case CategoryDevices:
		return "device"
	case CategorySettings:
		return "setting"
	default:
		return string(c)
	}
}

// IdentityRecord identifies a staged delete or retire by numeric id and
// display name.
type IdentityRecord struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// UnlockRecord is a staged account unlock.
type UnlockRecord struct {
	ID                    uint64 `json:"id"`
	Name                  string `json:"name"`
	ChangePasswordOnLogin bool   `json:"changePasswordOnLogin"`
}

// UpdateRecord is a staged update. NewValue holds only the fields that differ
// from OldValue, as computed by the diff engine, never the full new object.
type UpdateRecord struct {
	ID       uint64      `json:"id"`
	Name     string      `json:"name"`
	OldValue interface{} `json:"oldValue"`
	NewValue interface{} `json:"newValue"`
}

// CategoryLedger holds the staged operations for one entity category.
// Retire and unlock are only populated for the users category.
type CategoryLedger struct {
	Create []map[string]interface{} `json:"create,omitempty"`
	Update []UpdateRecord           `json:"update,omitempty"`
	Delete []IdentityRecord         `json:"delete,omitempty"`
	Retire []IdentityRecord         `json:"retire,omitempty"`
	Unlock []UnlockRecord           `json:"unlock,omitempty"`
}

// Empty reports whether the ledger stages no operations.
func (l *CategoryLedger) Empty() bool {
	if l == nil {
		return true
	}
	return len(l.Create) == 0 && len(l.Update) == 0 && len(l.Delete) == 0 &&
		len(l.Retire) == 0 && len(l.Unlock) == 0
}

// findUpdate returns the index of the update record with the given id, or -1.
func (l *CategoryLedger) findUpdate(id uint64) int {
	for i, rec := range l.Update {
		if rec.ID == id {
			return i
		}
	}
	return -1
}

// containsIdentity reports whether the list already holds the exact record.
func containsIdentity(list []IdentityRecord, rec IdentityRecord) bool {
	for _, existing := range list {
		if existing == rec {
			return true
		}
	}
	return false
}

// containsUnlock reports whether the list already holds the exact record.
func containsUnlock(list []UnlockRecord, rec UnlockRecord) bool {
	for _, existing := range list {
		if existing == rec {
			return true
		}
	}
	return false
}

// SessionDocument is the staged-change record for one editing session,
// keyed by category. Absent categories decode to nil and are treated as
// empty ledgers, never as an error.
type SessionDocument struct {
	Users    *CategoryLedger `json:"users,omitempty"`
	Roles    *CategoryLedger `json:"roles,omitempty"`
	Devices  *CategoryLedger `json:"devices,omitempty"`
	Settings *CategoryLedger `json:"settingAndPolicies,omitempty"`
}

// Ledger returns the ledger for a category, allocating it on first use.
func (d *SessionDocument) Ledger(c Category) *CategoryLedger {
	slot := d.ledgerSlot(c)
	if slot == nil {
		return nil
	}
	if *slot == nil {
		*slot = &CategoryLedger{}
	}
	return *slot
}

// PeekLedger returns the ledger for a category without allocating; nil means
// the category has nothing staged.
func (d *SessionDocument) PeekLedger(c Category) *CategoryLedger {
	slot := d.ledgerSlot(c)
	if slot == nil {
		return nil
	}
	return *slot
}

func (d *SessionDocument) ledgerSlot(c Category) **CategoryLedger {
	switch c {
	case CategoryUsers:
		return &d.Users
	case CategoryRoles:
		return &d.Roles
	case CategoryDevices:
		return &d.Devices
	case CategorySettings:
		return &d.Settings
	default:
		return nil
	}
}

// ActiveCategories returns the categories with at least one staged operation.
func (d *SessionDocument) ActiveCategories() []Category {
	var active []Category
	for _, c := range Categories() {
		if !d.PeekLedger(c).Empty() {
			active = append(active, c)
		}
	}
	return active
}
