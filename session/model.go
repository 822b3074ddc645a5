package session

// Session is the server-side record of one login.
type Session struct {
	Handle        string
	UserID        string
	RecipeUserID  string
	TenantID      string
	RefreshHash   [32]byte
	// ParentRefreshHash is the hash rotated out by the last refresh. Zero
	// until the first rotation.
	ParentRefreshHash [32]byte
	AntiCSRFToken string

	// AccessPayload is the JSON user payload embedded in the current access token.
	AccessPayload []byte
	// Data is JSON kept only server-side.
	Data []byte

	CreatedAt int64
	ExpiresAt int64
}
