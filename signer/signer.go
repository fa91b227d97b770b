package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/michaelpento.lv/arbpipeline/types"
	"go.uber.org/zap"
)

// Signer builds and signs settlement transactions with the custody key.
type Signer struct {
	key     *ecdsa.PrivateKey
	chainID *big.Int
	signer  ethtypes.Signer
	logger  *zap.Logger
}

// New creates a signer for chainID. A nil key is accepted so that the
// failure is reported per transaction as a SigningFailure.
func New(key *ecdsa.PrivateKey, chainID *big.Int, logger *zap.Logger) *Signer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Signer{
		key:     key,
		chainID: new(big.Int).Set(chainID),
		signer:  ethtypes.NewEIP155Signer(chainID),
		logger:  logger,
	}
}

// Address returns the signing account, or the zero address without a key.
func (s *Signer) Address() common.Address {
	if s.key == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// Payload builds the canonical unsigned transaction body for plan.
func (s *Signer) Payload(plan types.ExecutionPlan) types.TxPayload {
	return types.TxPayload{
		To:       plan.To,
		Data:     append([]byte(nil), plan.EncodedCall...),
		Value:    big.NewInt(0),
		GasLimit: plan.GasLimit,
		GasPrice: plan.GasPrice,
		Nonce:    plan.Nonce,
		ChainID:  new(big.Int).Set(s.chainID),
	}
}

// Sign signs the plan's transaction. SignatureHash is keccak256 of the raw
// signed bytes. Errors are SigningFailure errors.
func (s *Signer) Sign(plan types.ExecutionPlan) (types.SignedTransaction, error) {
	if s.key == nil {
		return types.SignedTransaction{}, types.NewError(types.KindSigningFailure, "sign", fmt.Errorf("no signing key"))
	}
	if plan.GasPrice == nil {
		return types.SignedTransaction{}, types.NewError(types.KindSigningFailure, "sign", fmt.Errorf("plan has no gas price"))
	}

	payload := s.Payload(plan)
	to := payload.To
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    payload.Nonce,
		GasPrice: payload.GasPrice,
		Gas:      payload.GasLimit,
		To:       &to,
		Value:    payload.Value,
		Data:     payload.Data,
	})

	signed, err := ethtypes.SignTx(tx, s.signer, s.key)
	if err != nil {
		return types.SignedTransaction{}, types.NewError(types.KindSigningFailure, "sign", fmt.Errorf("failed to sign transaction: %w", err))
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return types.SignedTransaction{}, types.NewError(types.KindSigningFailure, "encode", fmt.Errorf("failed to encode transaction: %w", err))
	}

	result := types.SignedTransaction{
		OpportunityID: plan.Opportunity.ID,
		Payload:       payload,
		SignatureHash: crypto.Keccak256Hash(raw),
		RawBytes:      raw,
	}
	s.logger.Debug("Signed transaction",
		zap.String("opportunity", result.OpportunityID),
		zap.String("signatureHash", result.SignatureHash.Hex()),
		zap.Uint64("nonce", payload.Nonce))
	return result, nil
}

// Decode parses raw signed bytes back into a transaction.
func Decode(raw []byte) (*ethtypes.Transaction, error) {
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return tx, nil
}
