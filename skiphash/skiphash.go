// Package skiphash implements the domain hash function, the row-hash
// commitment, and the fixed-leaf Merkle "levels" hash (including funnel
// construction/reconstruction for condensed rows) described in spec.md
// §4.1. The reference binding is SHA-256, W=32 (spec.md §6).
package skiphash

import (
	"crypto/sha256"

	sl "github.com/skiplgr/skipledger"
)

// Sentinel is the all-zero W-byte hash assigned to the virtual row 0.
func Sentinel() sl.Hash {
	return sl.Hash{}
}

// H is the domain hash function: a stateless SHA-256 digest. Every
// invocation is independent; callers never share mutable digest state.
func H(data []byte) sl.Hash {
	return sl.Hash(sha256.Sum256(data))
}

// RowHash computes H(inputHash || levelsHash), the row's own commitment.
func RowHash(inputHash, levelsHash sl.Hash) sl.Hash {
	return H(sl.Concat(inputHash, levelsHash))
}

// LevelsMerkleHash computes the levels-merkle-hash of skipCount(rn) level
// hashes given in reverse-level order (index 0 is the deepest level). A
// single-element list is returned unchanged; otherwise it is the root of
// a fixed-leaf binary Merkle tree where an odd node at any level is
// carried up to the next level unchanged rather than paired with itself.
func LevelsMerkleHash(levels []sl.Hash) sl.Hash {
	sl.Assert(len(levels) >= 1, "LevelsMerkleHash: need at least one level hash")
	if len(levels) == 1 {
		return levels[0]
	}
	tree := buildTree(levels)
	top := tree[len(tree)-1]
	sl.Assert(len(top) == 1, "LevelsMerkleHash: tree did not converge to a single root")
	return top[0]
}

// BuildFunnel returns the sibling sequence needed to reconstruct the
// levels-merkle-hash root from just the leaf at index leaf (0-based,
// reverse-level order), of length geom.FunnelLength(len(levels), leaf).
func BuildFunnel(levels []sl.Hash, leaf int) []sl.Hash {
	sl.Assert(leaf >= 0 && leaf < len(levels), "BuildFunnel: leaf %d out of range for %d levels", leaf, len(levels))
	tree := buildTree(levels)
	funnel := make([]sl.Hash, 0, len(tree))
	idx := leaf
	for d := 0; d < len(tree)-1; d++ {
		cur := tree[d]
		if idx%2 == 0 {
			if idx+1 < len(cur) {
				funnel = append(funnel, cur[idx+1])
			}
		} else {
			funnel = append(funnel, cur[idx-1])
		}
		idx /= 2
	}
	return funnel
}

// RootFromFunnel reconstructs the levels-merkle-hash root from a single
// leaf hash, its index, the original leaf count n, and its funnel. It
// yields the same hash as LevelsMerkleHash computed from all n leaves.
func RootFromFunnel(leafHash sl.Hash, leaf, n int, funnel []sl.Hash) sl.Hash {
	cur := leafHash
	idx, count, fi := leaf, n, 0
	for count > 1 {
		if idx%2 == 0 {
			if idx+1 < count {
				sl.Assert(fi < len(funnel), "RootFromFunnel: funnel exhausted")
				cur = H(sl.Concat(cur, funnel[fi]))
				fi++
			}
		} else {
			sl.Assert(fi < len(funnel), "RootFromFunnel: funnel exhausted")
			cur = H(sl.Concat(funnel[fi], cur))
			fi++
		}
		idx /= 2
		count = (count + 1) / 2
	}
	sl.Assert(fi == len(funnel), "RootFromFunnel: funnel has unused entries")
	return cur
}

// buildTree computes every level of the fixed-leaf Merkle tree bottom-up,
// tree[0] being the leaves. An odd node at any level is carried up to the
// next level unchanged (not hashed against itself).
func buildTree(leaves []sl.Hash) [][]sl.Hash {
	tree := make([][]sl.Hash, 0, 8)
	tree = append(tree, leaves)
	cur := leaves
	for len(cur) > 1 {
		next := make([]sl.Hash, 0, (len(cur)+1)/2)
		for i := 0; i < len(cur); i += 2 {
			if i+1 < len(cur) {
				next = append(next, H(sl.Concat(cur[i], cur[i+1])))
			} else {
				next = append(next, cur[i])
			}
		}
		tree = append(tree, next)
		cur = next
	}
	return tree
}
