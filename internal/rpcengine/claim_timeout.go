package rpcengine

import "github.com/fabric-actor/kernel/pkg/apierr"

// ClaimTimeout is the dedicated timeout for a delegation claim/reclaim
// round trip (§C.1), distinct from the generic per-call RPC timeout: it
// correlates the failure with the delegation id rather than only the
// message id, grounded on original_source's kernel/ClaimTimeout.py.
type ClaimTimeout struct {
	*apierr.Error
	DelegationID string
}

// NewClaimTimeout builds a ClaimTimeout for messageID/delegationID.
func NewClaimTimeout(messageID, delegationID string) *ClaimTimeout {
	return &ClaimTimeout{
		Error:        apierr.TransportTimeout(messageID).WithDetail("delegation_id", delegationID),
		DelegationID: delegationID,
	}
}
