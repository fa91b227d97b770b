package shield

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/michaelpento.lv/arbpipeline/types"
)

// ErrNoLeaves is returned when a commitment is requested over an empty batch.
var ErrNoLeaves = errors.New("merkle tree needs at least one leaf")

// HashPair is the order-sensitive combine rule: keccak256(left || right).
func HashPair(left, right common.Hash) common.Hash {
	return crypto.Keccak256Hash(left.Bytes(), right.Bytes())
}

// BuildTree commits to leaves in the given order. A level with an odd number
// of nodes pairs its last node with itself, at every level.
func BuildTree(leaves []common.Hash) (types.MerkleCommitment, error) {
	if len(leaves) == 0 {
		return types.MerkleCommitment{}, ErrNoLeaves
	}

	level := append([]common.Hash(nil), leaves...)
	levels := [][]common.Hash{level}
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left, right := level[i], level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, HashPair(left, right))
		}
		levels = append(levels, next)
		level = next
	}

	return types.MerkleCommitment{
		Root:   level[0],
		Leaves: append([]common.Hash(nil), leaves...),
		Levels: levels,
	}, nil
}

// BuildCommitment commits to the signature hashes of txs.
func BuildCommitment(txs []types.SignedTransaction) (types.MerkleCommitment, error) {
	leaves := make([]common.Hash, len(txs))
	for i, tx := range txs {
		leaves[i] = tx.SignatureHash
	}
	return BuildTree(leaves)
}

// ProofFor returns the sibling path from leaf index up to the root. A lone
// leaf has an empty proof.
func ProofFor(index int, c types.MerkleCommitment) ([]common.Hash, error) {
	if index < 0 || index >= len(c.Leaves) {
		return nil, fmt.Errorf("leaf index %d out of range [0,%d)", index, len(c.Leaves))
	}

	proof := make([]common.Hash, 0, len(c.Levels))
	for lvl := 0; lvl < len(c.Levels)-1; lvl++ {
		nodes := c.Levels[lvl]
		sibling := index ^ 1
		if sibling >= len(nodes) {
			sibling = index
		}
		proof = append(proof, nodes[sibling])
		index /= 2
	}
	return proof, nil
}

// Verify folds leaf with proof and compares the result to root. index decides
// on which side each sibling is combined.
func Verify(leaf common.Hash, index int, proof []common.Hash, root common.Hash) bool {
	if index < 0 {
		return false
	}
	current := leaf
	for _, sibling := range proof {
		if index%2 == 0 {
			current = HashPair(current, sibling)
		} else {
			current = HashPair(sibling, current)
		}
		index /= 2
	}
	return current == root
}
