package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gurjot03/parsec-cloud/internal/client/models"
	"github.com/gurjot03/parsec-cloud/internal/common"
	"github.com/gurjot03/parsec-cloud/internal/cryptox"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const tokenValidity = 5 * time.Minute

// GRPCClient implements Backend over a gRPC connection.
type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	cc          grpc.ClientConnInterface
	timeout     time.Duration

	deviceID   models.DeviceID
	signingKey cryptox.SigningKey
	now        func() time.Time

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

var _ Backend = (*GRPCClient)(nil)

func NewGRPCClient(endpointURL string, deviceID models.DeviceID, sk cryptox.SigningKey, timeout time.Duration) (*GRPCClient, error) {
	c := &GRPCClient{
		endpointURL: endpointURL,
		timeout:     timeout,
		deviceID:    deviceID,
		signingKey:  sk,
		now:         time.Now,
	}
	if err := c.InitGRPCClient(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *GRPCClient) InitGRPCClient() error {
	conn, err := grpc.NewClient(c.endpointURL,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return err
	}
	c.conn = conn
	c.cc = conn
	return nil
}

func (c *GRPCClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// token returns a cached bearer token, minting a new one shortly before the
// previous one expires.
func (c *GRPCClient) token() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.accessToken != "" && now.Add(tokenValidity/5).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	tok, err := GenerateDeviceToken(c.deviceID, c.signingKey, tokenValidity, now)
	if err != nil {
		return "", err
	}
	c.accessToken = tok
	c.tokenExpiry = now.Add(tokenValidity)
	return tok, nil
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AuthorizationHeaderName, "Bearer "+token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (c *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	tok, err := c.token()
	if err != nil {
		return fmt.Errorf("sign access token: %w", err)
	}
	return invoker(withAccessToken(ctx, tok), method, req, reply, cc, opts...)
}

func (c *GRPCClient) call(ctx context.Context, method string, req, reply any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return mapError(c.cc.Invoke(ctx, method, req, reply))
}

func (c *GRPCClient) Ping(ctx context.Context) error {
	var resp pingResponse
	if err := c.call(ctx, methodPing, &empty{}, &resp); err != nil {
		return err
	}
	if resp.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (c *GRPCClient) VlobRead(ctx context.Context, encryptionRevision uint64, vlobID models.EntryID, version uint64) (VlobReadResult, error) {
	req := &vlobReadRequest{EncryptionRevision: encryptionRevision, VlobID: vlobID, Version: version}
	var resp VlobReadResult
	if err := c.call(ctx, methodVlobRead, req, &resp); err != nil {
		return VlobReadResult{}, err
	}
	return resp, nil
}

func (c *GRPCClient) VlobCreate(ctx context.Context, realmID models.EntryID, encryptionRevision uint64, vlobID models.EntryID, timestamp time.Time, blob []byte) error {
	req := &vlobCreateRequest{
		RealmID:            realmID,
		EncryptionRevision: encryptionRevision,
		VlobID:             vlobID,
		Timestamp:          timestamp,
		Blob:               blob,
	}
	return c.call(ctx, methodVlobCreate, req, &empty{})
}

func (c *GRPCClient) VlobUpdate(ctx context.Context, encryptionRevision uint64, vlobID models.EntryID, version uint64, timestamp time.Time, blob []byte) error {
	req := &vlobUpdateRequest{
		EncryptionRevision: encryptionRevision,
		VlobID:             vlobID,
		Version:            version,
		Timestamp:          timestamp,
		Blob:               blob,
	}
	return c.call(ctx, methodVlobUpdate, req, &empty{})
}

func (c *GRPCClient) RealmCreate(ctx context.Context, roleCertificate []byte) error {
	return c.call(ctx, methodRealmCreate, &realmCreateRequest{RoleCertificate: roleCertificate}, &empty{})
}

func (c *GRPCClient) RealmUpdateRoles(ctx context.Context, roleCertificate []byte, recipientMessage []byte) error {
	req := &realmUpdateRolesRequest{RoleCertificate: roleCertificate, RecipientMessage: recipientMessage}
	return c.call(ctx, methodRealmUpdateRoles, req, &empty{})
}

func (c *GRPCClient) RealmStatus(ctx context.Context, realmID models.EntryID) (RealmStatus, error) {
	var resp RealmStatus
	if err := c.call(ctx, methodRealmStatus, &realmRequest{RealmID: realmID}, &resp); err != nil {
		return RealmStatus{}, err
	}
	return resp, nil
}

func (c *GRPCClient) RealmGetRoleCertificates(ctx context.Context, realmID models.EntryID) ([][]byte, error) {
	var resp roleCertificatesResponse
	if err := c.call(ctx, methodRealmGetRoleCertificates, &realmRequest{RealmID: realmID}, &resp); err != nil {
		return nil, err
	}
	return resp.Certificates, nil
}

func (c *GRPCClient) RealmStartReencryptionMaintenance(ctx context.Context, realmID models.EntryID, encryptionRevision uint64, timestamp time.Time, perParticipantMessage map[models.UserID][]byte) error {
	req := &startReencryptionRequest{
		RealmID:               realmID,
		EncryptionRevision:    encryptionRevision,
		Timestamp:             timestamp,
		PerParticipantMessage: perParticipantMessage,
	}
	return c.call(ctx, methodRealmStartReencryption, req, &empty{})
}

func (c *GRPCClient) RealmFinishReencryptionMaintenance(ctx context.Context, realmID models.EntryID, encryptionRevision uint64) error {
	req := &finishReencryptionRequest{RealmID: realmID, EncryptionRevision: encryptionRevision}
	return c.call(ctx, methodRealmFinishReencryption, req, &empty{})
}

func (c *GRPCClient) VlobMaintenanceGetReencryptionBatch(ctx context.Context, realmID models.EntryID, encryptionRevision uint64, size int) ([]ReencryptionBatchEntry, error) {
	req := &getReencryptionBatchRequest{RealmID: realmID, EncryptionRevision: encryptionRevision, Size: size}
	var resp reencryptionBatchResponse
	if err := c.call(ctx, methodVlobGetReencryptionBatch, req, &resp); err != nil {
		return nil, err
	}
	return resp.Batch, nil
}

func (c *GRPCClient) VlobMaintenanceSaveReencryptionBatch(ctx context.Context, realmID models.EntryID, encryptionRevision uint64, batch []ReencryptionBatchEntry) (int, int, error) {
	req := &saveReencryptionBatchRequest{RealmID: realmID, EncryptionRevision: encryptionRevision, Batch: batch}
	var resp saveReencryptionBatchResponse
	if err := c.call(ctx, methodVlobSaveReencryptionBatch, req, &resp); err != nil {
		return 0, 0, err
	}
	if resp.Done > resp.Total {
		return 0, 0, fmt.Errorf("%w: done %d > total %d", ErrBadResponse, resp.Done, resp.Total)
	}
	return resp.Total, resp.Done, nil
}

func (c *GRPCClient) MessageGet(ctx context.Context, offset uint64) ([]Message, error) {
	var resp messageGetResponse
	if err := c.call(ctx, methodMessageGet, &messageGetRequest{Offset: offset}, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *GRPCClient) UserGet(ctx context.Context, userID models.UserID) (UserRecord, error) {
	var resp UserRecord
	if err := c.call(ctx, methodUserGet, &userGetRequest{UserID: userID}, &resp); err != nil {
		return UserRecord{}, err
	}
	return resp, nil
}

// statusErrors maps the protocol status carried in the gRPC status message
// to sentinel errors.
var statusErrors = map[string]error{
	"bad_version":             ErrBadVersion,
	"in_maintenance":          ErrInMaintenance,
	"not_in_maintenance":      ErrNotInMaintenance,
	"bad_encryption_revision": ErrBadEncryptionRevision,
	"participants_mismatch":   ErrParticipantsMismatch,
	"role_already_granted":    ErrRoleAlreadyGranted,
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.Unauthenticated:
		return ErrUnauthorized
	case codes.PermissionDenied:
		return ErrNotAllowed
	case codes.NotFound:
		return ErrNotFound
	case codes.AlreadyExists:
		if st.Message() == "role_already_granted" {
			return ErrRoleAlreadyGranted
		}
		return ErrAlreadyExists
	case codes.FailedPrecondition, codes.Aborted:
		if mapped, ok := statusErrors[st.Message()]; ok {
			return mapped
		}
		return fmt.Errorf("%w: %s", ErrBadResponse, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
