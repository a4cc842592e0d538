package model

import "time"

// Component is the immutable description of a pool. Tokens are ordered;
// Tokens[0] is the base and Tokens[1] the quote for spot prices.
type Component struct {
	ID               string            `json:"id"`
	Tokens           []Token           `json:"tokens"`
	ProtocolSystem   string            `json:"protocol_system"`
	StaticAttributes map[string]string `json:"static_attributes,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// Token returns the component token whose address matches exactly.
func (c Component) Token(address string) (Token, bool) {
	for _, token := range c.Tokens {
		if token.Address == address {
			return token, true
		}
	}
	return Token{}, false
}

// Counterpart orients a two-token component around the sell token and
// returns (tokenIn, tokenOut).
func (c Component) Counterpart(sellToken string) (Token, Token, bool) {
	if len(c.Tokens) != 2 {
		return Token{}, Token{}, false
	}
	switch sellToken {
	case c.Tokens[0].Address:
		return c.Tokens[0], c.Tokens[1], true
	case c.Tokens[1].Address:
		return c.Tokens[1], c.Tokens[0], true
	default:
		return Token{}, Token{}, false
	}
}
