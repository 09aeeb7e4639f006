package auth

// Principal identifies the account behind an authenticated request. It is
// built server-side from a validated session token; role and status claims
// supplied by callers are never trusted.
type Principal struct {
	AccountID uint   `json:"account_id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
}
