// Package wallet abstracts transaction signing and submission. The rest of
// the core only sees the interface; whether keys live in memory or behind
// an external signer is this package's concern.
package wallet

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/mr-tron/base58"

	"dex_go/internal/domain"
)

// TxSender submits a signed transaction and returns its signature.
type TxSender interface {
	SendTransaction(ctx context.Context, signedTx []byte) (string, error)
}

// Wallet signs and submits transactions for one keypair.
type Wallet interface {
	// PublicKey returns the wallet address, or "" when disconnected.
	PublicKey() string
	Connected() bool
	Connect() error
	Disconnect()
	// SignAndSend signs the transaction payload and submits it, returning
	// the transaction signature.
	SignAndSend(ctx context.Context, payload []byte) (string, error)
}

// KeypairWallet holds an in-memory ed25519 keypair.
type KeypairWallet struct {
	mu        sync.RWMutex
	priv      ed25519.PrivateKey
	pub       string
	connected bool
	sender    TxSender
}

// NewKeypairWallet wraps an existing private key.
func NewKeypairWallet(priv ed25519.PrivateKey, sender TxSender) (*KeypairWallet, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size: %d", len(priv))
	}
	pub := priv.Public().(ed25519.PublicKey)
	return &KeypairWallet{
		priv:   priv,
		pub:    base58.Encode(pub),
		sender: sender,
	}, nil
}

// GenerateWallet creates a wallet with a fresh keypair, for local testing.
func GenerateWallet(sender TxSender) (*KeypairWallet, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	return NewKeypairWallet(priv, sender)
}

func (w *KeypairWallet) PublicKey() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.connected {
		return ""
	}
	return w.pub
}

func (w *KeypairWallet) Connected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

func (w *KeypairWallet) Connect() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = true
	return nil
}

func (w *KeypairWallet) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = false
}

// SignAndSend appends the ed25519 signature to the payload and submits the
// result. Fails with ErrNotConnected when the wallet is disconnected.
func (w *KeypairWallet) SignAndSend(ctx context.Context, payload []byte) (string, error) {
	w.mu.RLock()
	connected := w.connected
	priv := w.priv
	w.mu.RUnlock()

	if !connected {
		return "", domain.ErrNotConnected
	}

	sig := ed25519.Sign(priv, payload)
	signed := make([]byte, 0, len(sig)+len(payload))
	signed = append(signed, sig...)
	signed = append(signed, payload...)

	return w.sender.SendTransaction(ctx, signed)
}
