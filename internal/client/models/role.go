package models

// RealmRole is the access level of a user on a realm. The zero value means
// no access.
type RealmRole string

const (
	RoleNone        RealmRole = ""
	RoleOwner       RealmRole = "OWNER"
	RoleManager     RealmRole = "MANAGER"
	RoleContributor RealmRole = "CONTRIBUTOR"
	RoleReader      RealmRole = "READER"
)

func (r RealmRole) Valid() bool {
	switch r {
	case RoleNone, RoleOwner, RoleManager, RoleContributor, RoleReader:
		return true
	}
	return false
}

// CanShare reports whether the role may grant or revoke access to others.
func (r RealmRole) CanShare() bool {
	return r == RoleOwner || r == RoleManager
}

func (r RealmRole) CanWrite() bool {
	return r == RoleOwner || r == RoleManager || r == RoleContributor
}
