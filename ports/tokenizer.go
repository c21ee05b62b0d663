package ports

import "github.com/layer-3/gatekeeper/core"

// Tokenizer issues and verifies session tokens
type Tokenizer interface {
	Issue(subject string, role core.Role) (core.TokenPair, error)
	// Verify checks signature, expiry and kind, in that order.
	Verify(token string, kind core.TokenKind) (*core.Claims, error)
	// Decode reads claims without checking the signature.
	Decode(token string) (*core.Claims, error)
}
