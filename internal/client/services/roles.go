package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/gurjot03/parsec-cloud/internal/client/client"
	"github.com/gurjot03/parsec-cloud/internal/client/models"
	"github.com/gurjot03/parsec-cloud/internal/common"
)

// RealmCurrentRoles returns the roles of a realm after replaying and
// verifying its role certificate chain. Users without access are absent.
func (u *UserFS) RealmCurrentRoles(ctx context.Context, realmID models.EntryID) (map[models.UserID]models.RealmRole, error) {
	const op = "userfs.RealmCurrentRoles"

	certs, err := u.backend.RealmGetRoleCertificates(ctx, realmID)
	if errors.Is(err, client.ErrNotAllowed) || errors.Is(err, client.ErrNotFound) {
		return nil, &common.Error{Op: op, Workspace: string(realmID), Kind: common.ErrWorkspaceNoAccess, Err: err}
	}
	if err != nil {
		return nil, backendError(op, realmID, err)
	}

	roles := make(map[models.UserID]models.RealmRole)
	for i, raw := range certs {
		cert, err := u.verifyRoleCertificate(ctx, raw)
		if err != nil {
			if isOffline(err) || isCanceled(err) {
				return nil, backendError(op, realmID, err)
			}
			return nil, &common.Error{Op: op, Workspace: string(realmID), Item: fmt.Sprintf("certificate %d", i), Kind: common.ErrTrustResolution, Err: err}
		}
		if err := checkRoleTransition(roles, cert, realmID, i == 0); err != nil {
			return nil, &common.Error{Op: op, Workspace: string(realmID), Item: string(cert.Author), Kind: common.ErrTrustResolution, Err: err}
		}
		if cert.Role == models.RoleNone {
			delete(roles, cert.UserID)
		} else {
			roles[cert.UserID] = cert.Role
		}
	}
	return roles, nil
}

func (u *UserFS) verifyRoleCertificate(ctx context.Context, raw []byte) (models.RealmRoleCertificate, error) {
	claimed, err := models.UnsecureLoadRealmRoleCertificate(raw)
	if err != nil {
		return models.RealmRoleCertificate{}, err
	}
	author, err := u.resolver.ResolveDevice(ctx, claimed.Author)
	if err != nil {
		return models.RealmRoleCertificate{}, err
	}
	return models.VerifyRealmRoleCertificate(raw, author.VerifyKey, claimed.Author)
}

// checkRoleTransition enforces who may issue cert given the roles granted
// by the certificates before it.
func checkRoleTransition(roles map[models.UserID]models.RealmRole, cert models.RealmRoleCertificate, realmID models.EntryID, root bool) error {
	if cert.RealmID != realmID {
		return fmt.Errorf("certificate is for realm %s", cert.RealmID)
	}
	author := cert.Author.UserID()

	if root {
		if cert.UserID != author || cert.Role != models.RoleOwner {
			return errors.New("realm root certificate must be self-signed by an owner")
		}
		return nil
	}

	authorRole := roles[author]
	switch {
	case cert.UserID == author:
		return errors.New("users cannot change their own role")
	case !authorRole.CanShare():
		return fmt.Errorf("author role %q cannot share", authorRole)
	case authorRole == models.RoleManager && (cert.Role.CanShare() || roles[cert.UserID].CanShare()):
		return errors.New("managers can only grant contributor or reader roles")
	}
	return nil
}
