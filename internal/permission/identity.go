package permission

import "sync"

// Token restores a calling identity cleared by IdentityScope.
type Token struct {
	previous string
}

// IdentityScope clears and restores the identity permission checks and
// platform registrations are attributed to.
type IdentityScope interface {
	ClearCallingIdentity() Token
	RestoreCallingIdentity(Token)
}

// RunCleared runs fn with the calling identity cleared, and restores the
// previous identity when fn returns, fails or panics. A nil scope runs fn
// as is.
func RunCleared(scope IdentityScope, fn func() error) error {
	if scope == nil {
		return fn()
	}
	token := scope.ClearCallingIdentity()
	defer scope.RestoreCallingIdentity(token)
	return fn()
}

// Compile-time check that ProcessIdentity implements IdentityScope.
var _ IdentityScope = (*ProcessIdentity)(nil)

// ProcessIdentity tracks the calling identity of the hosting process.
// Clearing it attributes work to the process itself.
type ProcessIdentity struct {
	mu      sync.Mutex
	self    string
	calling string
}

// NewProcessIdentity creates a ProcessIdentity for the process named self,
// currently serving caller.
func NewProcessIdentity(self, caller string) *ProcessIdentity {
	return &ProcessIdentity{self: self, calling: caller}
}

// ClearCallingIdentity implements IdentityScope.
func (p *ProcessIdentity) ClearCallingIdentity() Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	token := Token{previous: p.calling}
	p.calling = p.self
	return token
}

// RestoreCallingIdentity implements IdentityScope.
func (p *ProcessIdentity) RestoreCallingIdentity(token Token) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calling = token.previous
}

// Calling returns the identity work is currently attributed to.
func (p *ProcessIdentity) Calling() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calling
}
