package service

// Session is the caller's identity as far as cart routing is concerned.
// It is passed explicitly so the routing needs no global auth state.
type Session struct {
	UserID  string
	Token   string
	GuestID string
}

// Authenticated reports whether mutations go to the account cart
func (s Session) Authenticated() bool {
	return s.UserID != "" && s.Token != ""
}

// OwnerKey names the cart this session mutates, for locking and caching
func (s Session) OwnerKey() string {
	if s.Authenticated() {
		return UserOwnerKey(s.UserID)
	}
	return GuestOwnerKey(s.GuestID)
}

// UserOwnerKey is the owner key of an account cart
func UserOwnerKey(userID string) string {
	return "user:" + userID
}

// GuestOwnerKey is the owner key of a guest cart
func GuestOwnerKey(guestID string) string {
	if guestID == "" {
		return "guest"
	}
	return "guest:" + guestID
}
