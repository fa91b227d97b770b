package shield

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/michaelpento.lv/arbpipeline/types"
)

// Options tune envelope fields that are not part of the commitment.
type Options struct {
	Network     string   // bloXroute blockchain_network, default "Mainnet"
	Builders    []string // bloXroute mev_builders, default all
	TargetBlock uint64   // Flashbots bundle block
	Attestation []byte   // optional BLS signature over the root
}

// ProviderPayload is a relay-specific protected envelope for one transaction.
// Body is nil for pass-through payloads.
type ProviderPayload struct {
	Provider Provider        `json:"provider"`
	TxHash   common.Hash     `json:"txHash"`
	Root     common.Hash     `json:"merkleRoot"`
	Proof    []common.Hash   `json:"merkleProof"`
	Body     json.RawMessage `json:"body,omitempty"`
}

// Protected reports whether the payload carries a relay envelope.
func (p ProviderPayload) Protected() bool {
	return len(p.Body) > 0
}

type bloxRouteParams struct {
	Transaction            string            `json:"transaction"`
	BlockchainNetwork      string            `json:"blockchain_network"`
	MEVBuilders            map[string]string `json:"mev_builders"`
	FrontrunningProtection bool              `json:"frontrunning_protection"`
	MerkleRoot             *common.Hash      `json:"merkle_root,omitempty"`
	MerkleProof            []common.Hash     `json:"merkle_proof"`
	CommitmentSignature    hexutil.Bytes     `json:"commitment_signature,omitempty"`
}

type bloxRouteRequest struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params bloxRouteParams `json:"params"`
}

type mevProtection struct {
	Enabled             bool          `json:"enabled"`
	MerkleRoot          *common.Hash  `json:"merkle_root,omitempty"`
	MerkleProof         []common.Hash `json:"merkle_proof"`
	CommitmentSignature hexutil.Bytes `json:"commitment_signature,omitempty"`
}

type quickNodeRequest struct {
	JSONRPC       string         `json:"jsonrpc"`
	ID            int            `json:"id"`
	Method        string         `json:"method"`
	Params        []string       `json:"params"`
	MEVProtection *mevProtection `json:"mev_protection,omitempty"`
}

type flashbotsBundle struct {
	Txs                 []string       `json:"txs"`
	BlockNumber         hexutil.Uint64 `json:"blockNumber"`
	MerkleRoot          *common.Hash   `json:"merkleRoot,omitempty"`
	MerkleProof         []common.Hash  `json:"merkleProof"`
	CommitmentSignature hexutil.Bytes  `json:"commitmentSignature,omitempty"`
}

type flashbotsRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      int               `json:"id"`
	Method  string            `json:"method"`
	Params  []flashbotsBundle `json:"params"`
}

// PassThrough returns the payload used when shielding is disabled: no
// envelope, empty root and proof.
func PassThrough(tx types.SignedTransaction) ProviderPayload {
	return ProviderPayload{TxHash: tx.SignatureHash, Proof: []common.Hash{}}
}

// Wrap builds the provider envelope for tx with default options.
func Wrap(tx types.SignedTransaction, c types.MerkleCommitment, proof []common.Hash, provider Provider) (ProviderPayload, error) {
	return WrapWithOptions(tx, c, proof, provider, Options{})
}

// WrapWithOptions builds the provider envelope for tx. An empty commitment
// omits the Merkle root.
func WrapWithOptions(tx types.SignedTransaction, c types.MerkleCommitment, proof []common.Hash, provider Provider, opts Options) (ProviderPayload, error) {
	if len(tx.RawBytes) == 0 {
		return ProviderPayload{}, fmt.Errorf("transaction %s has no raw bytes", tx.SignatureHash.Hex())
	}

	var root *common.Hash
	if !c.Empty() {
		r := c.Root
		root = &r
	}
	proof = append([]common.Hash{}, proof...)
	rawHex := hexutil.Encode(tx.RawBytes)

	var body interface{}
	switch provider {
	case BloxRoute:
		network := opts.Network
		if network == "" {
			network = "Mainnet"
		}
		builders := map[string]string{}
		for _, b := range opts.Builders {
			builders[strings.ToLower(b)] = ""
		}
		if len(builders) == 0 {
			builders["all"] = ""
		}
		body = bloxRouteRequest{
			ID:     "1",
			Method: "blxr_tx",
			Params: bloxRouteParams{
				Transaction:            strings.TrimPrefix(rawHex, "0x"),
				BlockchainNetwork:      network,
				MEVBuilders:            builders,
				FrontrunningProtection: true,
				MerkleRoot:             root,
				MerkleProof:            proof,
				CommitmentSignature:    opts.Attestation,
			},
		}
	case QuickNode:
		body = quickNodeRequest{
			JSONRPC: "2.0",
			ID:      1,
			Method:  "eth_sendRawTransaction",
			Params:  []string{rawHex},
			MEVProtection: &mevProtection{
				Enabled:             true,
				MerkleRoot:          root,
				MerkleProof:         proof,
				CommitmentSignature: opts.Attestation,
			},
		}
	case Flashbots:
		body = flashbotsRequest{
			JSONRPC: "2.0",
			ID:      1,
			Method:  "eth_sendBundle",
			Params: []flashbotsBundle{{
				Txs:                 []string{rawHex},
				BlockNumber:         hexutil.Uint64(opts.TargetBlock),
				MerkleRoot:          root,
				MerkleProof:         proof,
				CommitmentSignature: opts.Attestation,
			}},
		}
	default:
		return ProviderPayload{}, fmt.Errorf("unsupported relay provider %s", provider)
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return ProviderPayload{}, fmt.Errorf("failed to marshal %s envelope: %w", provider, err)
	}

	payload := ProviderPayload{
		Provider: provider,
		TxHash:   tx.SignatureHash,
		Proof:    proof,
		Body:     encoded,
	}
	if root != nil {
		payload.Root = *root
	}
	return payload, nil
}
