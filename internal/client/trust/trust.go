// Package trust resolves user and device identifiers to their public key
// material.
//
// Lookups are answered, in order, from the local device itself, an
// in-memory map, the persistent user cache and finally the backend. A
// backend answer populates both caches. Entries never expire: a revoked
// identity stays resolvable and exposes RevokedOn so callers can decide.
// RefreshUser skips the caches when the current revocation status matters.
package trust

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gurjot03/parsec-cloud/internal/client/client"
	"github.com/gurjot03/parsec-cloud/internal/client/device"
	"github.com/gurjot03/parsec-cloud/internal/client/models"
	"github.com/gurjot03/parsec-cloud/internal/client/repositories/usercache"
	"github.com/gurjot03/parsec-cloud/internal/common"
	"github.com/gurjot03/parsec-cloud/internal/cryptox"
	"github.com/gurjot03/parsec-cloud/internal/logging"
	"golang.org/x/sync/singleflight"
)

type RemoteUser struct {
	UserID    models.UserID     `json:"user_id"`
	PublicKey cryptox.PublicKey `json:"public_key"`
	RevokedOn *time.Time        `json:"revoked_on,omitempty"`
}

func (u RemoteUser) Revoked() bool {
	return u.RevokedOn != nil
}

type RemoteDevice struct {
	DeviceID  models.DeviceID   `json:"device_id"`
	VerifyKey cryptox.VerifyKey `json:"verify_key"`
	RevokedOn *time.Time        `json:"revoked_on,omitempty"`
}

// identity is a user with all its devices; it is what both caches hold.
type identity struct {
	User    RemoteUser     `json:"user"`
	Devices []RemoteDevice `json:"devices"`
}

func (i *identity) device(id models.DeviceID) (RemoteDevice, bool) {
	for _, d := range i.Devices {
		if d.DeviceID == id {
			return d, true
		}
	}
	return RemoteDevice{}, false
}

// sharedFetchTimeout bounds a backend fetch that no longer follows the
// cancellation of the caller that started it.
const sharedFetchTimeout = 30 * time.Second

// Resolver is safe for concurrent use.
type Resolver struct {
	local   *device.LocalDevice
	backend client.Backend
	cache   usercache.Repository
	logger  logging.Logger

	mu    sync.RWMutex
	users map[models.UserID]*identity

	fetches singleflight.Group
}

func NewResolver(local *device.LocalDevice, backend client.Backend, cache usercache.Repository, logger logging.Logger) *Resolver {
	return &Resolver{
		local:   local,
		backend: backend,
		cache:   cache,
		logger:  logger,
		users:   make(map[models.UserID]*identity),
	}
}

// ResolveUser returns common.ErrorNotFound if the backend does not know the
// user and common.ErrBackendOffline if it could not be asked.
func (r *Resolver) ResolveUser(ctx context.Context, userID models.UserID) (RemoteUser, error) {
	if userID == r.local.UserID() {
		return RemoteUser{UserID: userID, PublicKey: r.local.PublicKey()}, nil
	}

	id, err := r.lookup(ctx, userID, "")
	if err != nil {
		return RemoteUser{}, wrap("trust.ResolveUser", string(userID), err)
	}
	return id.User, nil
}

func (r *Resolver) ResolveDevice(ctx context.Context, deviceID models.DeviceID) (RemoteDevice, error) {
	if deviceID == r.local.DeviceID {
		return RemoteDevice{DeviceID: deviceID, VerifyKey: r.local.VerifyKey()}, nil
	}

	id, err := r.lookup(ctx, deviceID.UserID(), deviceID)
	if err != nil {
		return RemoteDevice{}, wrap("trust.ResolveDevice", string(deviceID), err)
	}
	d, ok := id.device(deviceID)
	if !ok {
		return RemoteDevice{}, wrap("trust.ResolveDevice", string(deviceID), common.ErrorNotFound)
	}
	return d, nil
}

// lookup returns the identity of userID. When wantDevice is set, a cached
// identity that lacks it is refetched once, since the user may have
// enrolled the device after it was cached.
func (r *Resolver) lookup(ctx context.Context, userID models.UserID, wantDevice models.DeviceID) (*identity, error) {
	if id := r.fromMemory(userID); id != nil && r.complete(id, wantDevice) {
		return id, nil
	}

	if id := r.fromDisk(ctx, userID); id != nil && r.complete(id, wantDevice) {
		r.remember(id)
		return id, nil
	}

	return r.fetchShared(ctx, userID)
}

// RefreshUser asks the backend for userID, bypassing both caches, and
// overwrites them with the answer. Callers use it where a stale revocation
// status would be wrong, such as choosing who receives a new key.
func (r *Resolver) RefreshUser(ctx context.Context, userID models.UserID) (RemoteUser, error) {
	if userID == r.local.UserID() {
		return RemoteUser{UserID: userID, PublicKey: r.local.PublicKey()}, nil
	}

	id, err := r.fetchShared(ctx, userID)
	if err != nil {
		return RemoteUser{}, wrap("trust.RefreshUser", string(userID), err)
	}
	return id.User, nil
}

// fetchShared collapses concurrent fetches of one user. The shared fetch
// is detached from the caller's cancellation so that one caller giving up
// does not fail the others; each caller still stops waiting on its own ctx.
func (r *Resolver) fetchShared(ctx context.Context, userID models.UserID) (*identity, error) {
	ch := r.fetches.DoChan(string(userID), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()
		return r.fetch(fctx, userID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*identity), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Resolver) complete(id *identity, wantDevice models.DeviceID) bool {
	if wantDevice == "" {
		return true
	}
	_, ok := id.device(wantDevice)
	return ok
}

func (r *Resolver) fromMemory(userID models.UserID) *identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.users[userID]
}

func (r *Resolver) remember(id *identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[id.User.UserID] = id
}

func cacheKey(userID models.UserID) string {
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:])
}

// fromDisk treats an unreadable entry as a miss and drops it.
func (r *Resolver) fromDisk(ctx context.Context, userID models.UserID) *identity {
	key := cacheKey(userID)
	blob, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.Warn(ctx, "user cache read failed", "user", userID, "error", err)
		return nil
	}
	if blob == nil {
		return nil
	}

	var id identity
	if err := cryptox.DecryptJSON(blob, r.local.LocalSymkey, &id); err != nil || id.User.UserID != userID {
		r.logger.Warn(ctx, "dropping unreadable user cache entry", "user", userID, "error", err)
		if err := r.cache.Delete(ctx, key); err != nil {
			r.logger.Warn(ctx, "user cache delete failed", "user", userID, "error", err)
		}
		return nil
	}
	return &id
}

func (r *Resolver) fetch(ctx context.Context, userID models.UserID) (*identity, error) {
	rec, err := r.backend.UserGet(ctx, userID)
	switch {
	case errors.Is(err, client.ErrNotFound):
		return nil, common.ErrorNotFound
	case errors.Is(err, client.ErrUnavailable):
		return nil, &common.Error{Op: "user_get", Kind: common.ErrBackendOffline, Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	case err != nil:
		return nil, &common.Error{Op: "user_get", Kind: common.ErrTrustResolution, Err: err}
	}

	id, err := parseUserRecord(userID, rec)
	if err != nil {
		return nil, &common.Error{Op: "user_get", Kind: common.ErrTrustResolution, Err: err}
	}

	blob, err := cryptox.EncryptJSON(id, r.local.LocalSymkey)
	if err == nil {
		err = r.cache.Set(ctx, cacheKey(userID), blob)
	}
	if err != nil {
		r.logger.Warn(ctx, "user cache write failed", "user", userID, "error", err)
	}

	r.remember(id)
	r.logger.Debug(ctx, "user resolved from backend", "user", userID, "devices", len(id.Devices))
	return id, nil
}

func parseUserRecord(userID models.UserID, rec client.UserRecord) (*identity, error) {
	if rec.UserID != userID {
		return nil, fmt.Errorf("record is for user %q", rec.UserID)
	}

	var pub cryptox.PublicKey
	if len(rec.PublicKey) != len(pub) {
		return nil, fmt.Errorf("public key: %w", cryptox.ErrKeySize)
	}
	copy(pub[:], rec.PublicKey)

	id := &identity{
		User:    RemoteUser{UserID: userID, PublicKey: pub, RevokedOn: rec.RevokedOn},
		Devices: make([]RemoteDevice, 0, len(rec.Devices)),
	}
	for _, d := range rec.Devices {
		deviceID, err := models.ParseDeviceID(string(d.DeviceID))
		if err != nil {
			return nil, err
		}
		if deviceID.UserID() != userID {
			return nil, fmt.Errorf("device %q does not belong to user %q", deviceID, userID)
		}
		vk, err := cryptox.ParseVerifyKey(d.VerifyKey)
		if err != nil {
			return nil, fmt.Errorf("device %q: %w", deviceID, err)
		}
		id.Devices = append(id.Devices, RemoteDevice{DeviceID: deviceID, VerifyKey: vk, RevokedOn: d.RevokedOn})
	}
	return id, nil
}

func wrap(op, item string, err error) error {
	var e *common.Error
	if errors.As(err, &e) {
		return &common.Error{Op: op, Item: item, Kind: e.Kind, Err: e.Err}
	}
	if errors.Is(err, common.ErrorNotFound) {
		return &common.Error{Op: op, Item: item, Kind: common.ErrorNotFound}
	}
	return fmt.Errorf("%s %s: %w", op, item, err)
}
