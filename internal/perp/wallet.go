package perp

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Signer is the wallet capability consumed by the submitter. Implementations
// may reject; a rejection surfaces as ErrUserRejected with no signature
// attached.
type Signer interface {
	PublicKey() solana.PublicKey
	SignTransaction(tx *solana.Transaction) error
}

// KeypairSigner signs with a local keypair loaded from a solana keygen file.
type KeypairSigner struct {
	key solana.PrivateKey
}

func NewKeypairSigner(path string) (*KeypairSigner, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("load keypair %s: %w", path, err)
	}
	return &KeypairSigner{key: key}, nil
}

func NewKeypairSignerFromKey(key solana.PrivateKey) *KeypairSigner {
	return &KeypairSigner{key: key}
}

func (s *KeypairSigner) PublicKey() solana.PublicKey {
	return s.key.PublicKey()
}

func (s *KeypairSigner) SignTransaction(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if s.key.PublicKey().Equals(key) {
			return &s.key
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	return nil
}
