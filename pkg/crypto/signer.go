package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// Signer authenticates mutating requests with HMAC-SHA256 over a shared
// secret. Verification is optional at the API boundary: requests that
// carry a signature must carry a valid one.
type Signer struct {
	secretKey []byte
	logger    *slog.Logger
}

func NewSigner(secretKey string, logger *slog.Logger) *Signer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Signer{
		secretKey: []byte(secretKey),
		logger:    logger,
	}
}

func (s *Signer) Sign(data []byte) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Signer) Verify(data []byte, signature string) (bool, error) {
	expected := s.Sign(data)

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		s.logger.Warn("Signature verification failed",
			slog.String("received", signature))
		return false, fmt.Errorf("invalid signature")
	}

	return true, nil
}

// SignOperation binds a caller to one ledger operation and amount.
func (s *Signer) SignOperation(caller, operation string, amount int64, timestamp int64) string {
	data := fmt.Sprintf("%s:%s:%d:%d", caller, operation, amount, timestamp)
	return s.Sign([]byte(data))
}

func (s *Signer) VerifyOperation(caller, operation string, amount int64, timestamp int64, signature string) (bool, error) {
	data := fmt.Sprintf("%s:%s:%d:%d", caller, operation, amount, timestamp)
	return s.Verify([]byte(data), signature)
}
