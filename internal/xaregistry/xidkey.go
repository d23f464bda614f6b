package xaregistry

import (
	"encoding/base64"
	"strings"
)

// XidKey is a value-equality, hashable form of an XA transaction
// identifier (formatID, globalTransactionId, branchQualifier), making it a
// valid Go map key. Two Xids are equal iff all three components are
// byte-equal; XidKey achieves that by base64-encoding each raw component,
// since a byte slice cannot itself be a map key.
type XidKey struct {
	FormatID    string
	GlobalTxnID string
	BranchQual  string
}

// NewXidKey derives an XidKey from the raw XA identifier components.
func NewXidKey(formatID int32, globalTransactionID, branchQualifier []byte) XidKey {
	fid := []byte{byte(formatID >> 24), byte(formatID >> 16), byte(formatID >> 8), byte(formatID)}
	return XidKey{
		FormatID:    base64.StdEncoding.EncodeToString(fid),
		GlobalTxnID: base64.StdEncoding.EncodeToString(globalTransactionID),
		BranchQual:  base64.StdEncoding.EncodeToString(branchQualifier),
	}
}

// String renders the key for diagnostics and log lines. It also doubles
// as the gid passed to PREPARE TRANSACTION/COMMIT PREPARED/ROLLBACK
// PREPARED, so ParseXidKey must be able to reverse it exactly.
func (k XidKey) String() string {
	return k.FormatID + ":" + k.GlobalTxnID + ":" + k.BranchQual
}

// ParseXidKey reverses XidKey.String, for a gid string read back from
// the backend's pg_prepared_xacts catalog during recovery.
func ParseXidKey(gid string) (XidKey, bool) {
	parts := strings.SplitN(gid, ":", 3)
	if len(parts) != 3 {
		return XidKey{}, false
	}
	return XidKey{FormatID: parts[0], GlobalTxnID: parts[1], BranchQual: parts[2]}, true
}
