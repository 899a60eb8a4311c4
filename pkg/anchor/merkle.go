package anchor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/VibeTensor/attestix/pkg/canonical"
	"github.com/VibeTensor/attestix/pkg/errs"
)

// leafDomain and nodeDomain are the RFC 6962-style domain-separation
// prefixes that make leaf hashes and internal-node hashes unambiguous —
// without them, a two-leaf subtree's internal hash would be indistinguishable
// from some other entry's leaf hash (a second-preimage attack).
const (
	leafDomain byte = 0x00
	nodeDomain byte = 0x01
)

// MerkleTree is a binary hash tree over a fixed, ordered list of entries.
// Unlike the teacher's MerkleTree, an odd node at any level is promoted
// unchanged rather than duplicated — duplication lets an attacker forge a
// valid proof for a balanced tree from an unbalanced one with the same root.
type MerkleTree struct {
	Root   string
	Levels [][]string // level 0 = leaves, last level = [Root]
}

// BuildMerkleTree hashes each entry into a domain-separated leaf and folds
// the tree upward. Entries are hashed in the order given — callers that
// need deterministic trees across runs must pre-sort their input.
func BuildMerkleTree(entries []any) (*MerkleTree, error) {
	if len(entries) == 0 {
		return nil, errs.New(errs.Validation, "cannot build a Merkle tree from zero entries")
	}

	leaves := make([]string, len(entries))
	for i, e := range entries {
		leafHash, err := hashLeaf(e)
		if err != nil {
			return nil, fmt.Errorf("anchor: failed to hash leaf %d: %w", i, err)
		}
		leaves[i] = leafHash
	}

	levels := [][]string{leaves}
	current := leaves
	for len(current) > 1 {
		next := make([]string, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			if i+1 < len(current) {
				next = append(next, hashNode(current[i], current[i+1]))
			} else {
				next = append(next, current[i]) // odd node promoted unchanged
			}
		}
		levels = append(levels, next)
		current = next
	}

	return &MerkleTree{Root: current[0], Levels: levels}, nil
}

func hashLeaf(entry any) (string, error) {
	data, err := canonical.Canonicalize(entry)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte{leafDomain})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashNode(leftHex, rightHex string) string {
	left, _ := hex.DecodeString(leftHex)
	right, _ := hex.DecodeString(rightHex)
	h := sha256.New()
	h.Write([]byte{nodeDomain})
	h.Write(left)
	h.Write(right)
	return hex.EncodeToString(h.Sum(nil))
}

// ProofStep is one sibling hash and its side on the path from a leaf to the
// root.
type ProofStep struct {
	SiblingHash string
	OnRight     bool // true if the sibling sits to the right of the current node
}

// Proof returns the inclusion proof for the leaf at index, or false if the
// index is out of range.
func (t *MerkleTree) Proof(index int) ([]ProofStep, bool) {
	if index < 0 || index >= len(t.Levels[0]) {
		return nil, false
	}

	var steps []ProofStep
	idx := index
	for level := 0; level < len(t.Levels)-1; level++ {
		nodes := t.Levels[level]
		isRightChild := idx%2 == 1
		var siblingIdx int
		if isRightChild {
			siblingIdx = idx - 1
		} else {
			siblingIdx = idx + 1
		}
		if siblingIdx < len(nodes) {
			steps = append(steps, ProofStep{SiblingHash: nodes[siblingIdx], OnRight: !isRightChild})
		}
		// else: idx was the promoted odd node — no sibling at this level.
		idx /= 2
	}
	return steps, true
}
