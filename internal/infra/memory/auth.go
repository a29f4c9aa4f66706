package memory

import "sync"

// AuthProvider is a static implementation of app.AuthProvider: the server
// process acts for one signed-in (or anonymous) user at a time.
type AuthProvider struct {
	mu     sync.RWMutex
	userID string
	email  string
}

func NewAuthProvider(userID, email string) *AuthProvider {
	return &AuthProvider{userID: userID, email: email}
}

func (a *AuthProvider) CurrentUser() (string, string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.userID, a.email, a.userID != ""
}

// SignIn swaps the active user.
func (a *AuthProvider) SignIn(userID, email string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.userID = userID
	a.email = email
}

// SignOut clears the active user.
func (a *AuthProvider) SignOut() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.userID = ""
	a.email = ""
}
