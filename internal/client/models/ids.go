// Package models defines the data model of the user-level sync engine:
// identifiers, realm roles, workspace entries, user manifests and their
// merge rules, and realm role certificates.
package models

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// EntryID identifies a manifest or a realm. Workspace ids double as realm ids.
type EntryID string

func NewEntryID() EntryID {
	return EntryID(uuid.NewString())
}

type UserID string

type DeviceName string

// DeviceID is "<user>@<device>".
type DeviceID string

var idPattern = regexp.MustCompile(`^[\w\-]{1,32}$`)

func NewDeviceID(user UserID, name DeviceName) DeviceID {
	return DeviceID(string(user) + "@" + string(name))
}

// ParseDeviceID validates s and returns it as a DeviceID.
func ParseDeviceID(s string) (DeviceID, error) {
	user, name, ok := strings.Cut(s, "@")
	if !ok || !idPattern.MatchString(user) || !idPattern.MatchString(name) {
		return "", fmt.Errorf("invalid device id %q", s)
	}
	return DeviceID(s), nil
}

func (d DeviceID) UserID() UserID {
	user, _, _ := strings.Cut(string(d), "@")
	return UserID(user)
}

func (d DeviceID) DeviceName() DeviceName {
	_, name, _ := strings.Cut(string(d), "@")
	return DeviceName(name)
}

// ValidUserID reports whether u is a well-formed user id.
func ValidUserID(u UserID) bool {
	return idPattern.MatchString(string(u))
}
