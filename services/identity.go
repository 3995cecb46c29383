package services

// Identity is the caller on whose behalf an operation runs. It is handed to
// every service call explicitly; the zero value is an anonymous caller.
type Identity struct {
	UserID string
}

func UserIdentity(userID string) Identity {
	return Identity{UserID: userID}
}

func (i Identity) IsAuthenticated() bool {
	return i.UserID != ""
}

// Owns reports whether the identity is the given creator.
func (i Identity) Owns(creatorID string) bool {
	return i.IsAuthenticated() && i.UserID == creatorID
}
