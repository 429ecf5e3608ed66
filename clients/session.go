package clients

import "github.com/vitwit/splitpay/types"

// Session is an explicit connection context: a chain client plus the signer
// and account that pay. It replaces any process-wide connection state; every
// payment call receives the session it should use.
type Session struct {
	Client  ChainClient
	Signer  Signer
	Account string
}

// Validate reports the first missing piece of s.
func (s *Session) Validate() error {
	if s == nil {
		return types.NewMissingFieldError("session")
	}

	var missing []string
	if s.Client == nil {
		missing = append(missing, "session.client")
	}
	if s.Signer == nil {
		missing = append(missing, "session.signer")
	}
	if s.Account == "" {
		missing = append(missing, "session.account")
	}
	if len(missing) > 0 {
		return types.NewMissingFieldError(missing...)
	}
	return nil
}

// Close releases the underlying chain connection.
func (s *Session) Close() {
	if s != nil && s.Client != nil {
		s.Client.Close()
	}
}
