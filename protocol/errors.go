package protocol

// Error codes sent in error messages. The set is closed; clients may switch
// on these values.
const (
	ErrCodeInvalidMessage   = "invalid_message"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodePairCodeExpired  = "pair_code_expired"
	ErrCodePairCodeNotFound = "pair_code_not_found"
	ErrCodePeerNotConnected = "peer_not_connected"
)
