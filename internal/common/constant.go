package common

// AuthorizationHeaderName is the gRPC metadata key used to carry the
// device-signed bearer token on outbound requests.
const AuthorizationHeaderName = "authorization"

// MessageBatchLimit caps how many mailbox messages are processed per batch.
const MessageBatchLimit = 1000
