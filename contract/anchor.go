package contract

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"fairCaseServer/config"
	"fairCaseServer/events"
	"fairCaseServer/logger"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrNotAnchored is returned when a transaction does not carry the expected
// commitment.
var ErrNotAnchored = errors.New("commitment not anchored")

// ChainClient is the subset of an Ethereum client the anchor needs
type ChainClient interface {
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
}

// Anchor writes every published commitment into a zero-value self
// transaction, giving it a public timestamp nobody can rewrite.
type Anchor struct {
	client     ChainClient
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int

	// serialises nonce allocation
	mu sync.Mutex

	anchoredMu sync.RWMutex
	anchored   map[string]common.Hash
}

// DialAnchor connects to the configured RPC endpoint
func DialAnchor(ctx context.Context, cfg config.AnchorConfig) (*Anchor, error) {
	logger.Info("🔌 Connecting to anchor RPC...")

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	anchor, err := NewAnchor(ctx, client, cfg.PrivateKey)
	if err != nil {
		client.Close()
		return nil, err
	}
	return anchor, nil
}

// NewAnchor builds an anchor on an existing client
func NewAnchor(ctx context.Context, client ChainClient, privateKeyHex string) (*Anchor, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	address := crypto.PubkeyToAddress(privateKey.PublicKey)
	logger.Info("✅ Anchor ready", "address", address.Hex(), "chainId", chainID.String())

	return &Anchor{
		client:     client,
		privateKey: privateKey,
		address:    address,
		chainID:    chainID,
		anchored:   make(map[string]common.Hash),
	}, nil
}

// Address returns the account commitments are anchored from
func (a *Anchor) Address() common.Address {
	return a.address
}

// Payload is the calldata that anchors a commitment
func Payload(commitment string) []byte {
	return []byte(config.AnchorPayloadPrefix + commitment)
}

// Submit signs and sends the anchoring transaction without waiting for it to
// be mined.
func (a *Anchor) Submit(ctx context.Context, commitment string) (*types.Transaction, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	nonce, err := a.client.PendingNonceAt(ctx, a.address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &a.address,
		Value:    big.NewInt(0),
		Gas:      config.AnchorGasLimit,
		GasPrice: gasPrice,
		Data:     Payload(commitment),
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(a.chainID), a.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign anchor transaction: %w", err)
	}

	if err := a.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to send anchor transaction: %w", err)
	}

	a.anchoredMu.Lock()
	a.anchored[commitment] = signed.Hash()
	a.anchoredMu.Unlock()

	return signed, nil
}

// TxHash returns the anchoring transaction of a commitment submitted by this
// process
func (a *Anchor) TxHash(commitment string) (common.Hash, bool) {
	a.anchoredMu.RLock()
	defer a.anchoredMu.RUnlock()
	h, ok := a.anchored[commitment]
	return h, ok
}

// VerifyAnchored checks that txHash is a mined transaction from the anchor
// account carrying commitment.
func (a *Anchor) VerifyAnchored(ctx context.Context, txHash common.Hash, commitment string) error {
	tx, pending, err := a.client.TransactionByHash(ctx, txHash)
	if err != nil {
		return fmt.Errorf("failed to get transaction: %w", err)
	}
	if pending {
		return fmt.Errorf("%w: transaction %s is still pending", ErrNotAnchored, txHash.Hex())
	}

	sender, err := types.Sender(types.LatestSignerForChainID(a.chainID), tx)
	if err != nil {
		return fmt.Errorf("failed to recover sender: %w", err)
	}
	if sender != a.address {
		return fmt.Errorf("%w: sent by %s", ErrNotAnchored, sender.Hex())
	}
	if string(tx.Data()) != string(Payload(commitment)) {
		return fmt.Errorf("%w: payload %q", ErrNotAnchored, tx.Data())
	}
	return nil
}

/* =========================
   events.Publisher
========================= */

// CommitmentPublished anchors the commitment and waits until it is mined
func (a *Anchor) CommitmentPublished(ctx context.Context, ev events.CommitmentEvent) error {
	ctx, cancel := context.WithTimeout(ctx, config.AnchorTimeout)
	defer cancel()

	tx, err := a.Submit(ctx, ev.Commitment)
	if err != nil {
		return err
	}

	receipt, err := bind.WaitMined(ctx, a.client, tx)
	if err != nil {
		return fmt.Errorf("anchor transaction mining failed: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("anchor transaction failed with status: %d", receipt.Status)
	}

	logger.Info("⛓️  Commitment anchored",
		"commitment", ev.Commitment, "tx", tx.Hash().Hex(), "block", receipt.BlockNumber.String())
	return nil
}

// RoundResolved is not anchored; rounds are verified from the reveal
func (a *Anchor) RoundResolved(context.Context, events.RoundEvent) error {
	return nil
}

// SeedRevealed is not anchored; the seed is checked against the anchored hash
func (a *Anchor) SeedRevealed(context.Context, events.RevealEvent) error {
	return nil
}
