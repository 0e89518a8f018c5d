package customer

import "time"

// Customer is a registered wallet owner. The raw token is never stored,
// only its digest.
type Customer struct {
    ID          int64
    XID         string
    TokenDigest []byte
    CreatedAt   time.Time
}

// Identity is what wallet operations receive once a token has been resolved.
type Identity struct {
    ID  int64  `json:"id"`
    XID string `json:"xid"`
}

// Identity returns the resolved identity of the customer.
func (c Customer) Identity() Identity {
    return Identity{ID: c.ID, XID: c.XID}
}
