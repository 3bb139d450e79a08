package cas

import (
	"fmt"
	"math"
)

// DefaultNodeLimit is the default maximum serialized node size (4 MiB).
const DefaultNodeLimit = 4 * 1024 * 1024

// Layout describes the unique B-tree shape for a (fileSize, nodeLimit)
// pair. Each node carries its own data size and an ordered list of child
// sub-layouts; the layout is filled greedily, leftmost children first.
type Layout struct {
	// Depth is 1 for a leaf.
	Depth int

	// DataSize is the number of file bytes stored in this node itself.
	DataSize uint64

	// Children are the sub-layouts in file byte order. A node's own data
	// precedes its children's data in the file.
	Children []*Layout
}

// TotalSize returns the summed data size of the whole subtree.
func (l *Layout) TotalSize() uint64 {
	total := l.DataSize
	for _, c := range l.Children {
		total += c.TotalSize()
	}
	return total
}

// NodeCount returns the number of nodes in the subtree.
func (l *Layout) NodeCount() int {
	n := 1
	for _, c := range l.Children {
		n += c.NodeCount()
	}
	return n
}

// UsableSpace returns L, the per-node space left after the header.
func UsableSpace(nodeLimit uint64) uint64 {
	return nodeLimit - HeaderSize
}

// Capacity returns C(d) = L^d / 16^(d-1), the maximum file size a subtree
// of depth d can hold, saturating at MaxUint64.
func Capacity(depth int, nodeLimit uint64) uint64 {
	L := UsableSpace(nodeLimit)
	cap := L
	step := L / KeySize
	for d := 1; d < depth; d++ {
		if cap > math.MaxUint64/step {
			return math.MaxUint64
		}
		cap *= step
	}
	return cap
}

func validNodeLimit(nodeLimit uint64) error {
	if nodeLimit < 64 || nodeLimit%16 != 0 {
		return fmt.Errorf("node limit must be a multiple of 16 and at least 64, got %d", nodeLimit)
	}
	return nil
}

// ComputeLayout computes the unique tree layout for a file of fileSize
// bytes under the given node size limit.
func ComputeLayout(fileSize, nodeLimit uint64) (*Layout, error) {
	if err := validNodeLimit(nodeLimit); err != nil {
		return nil, err
	}
	depth := 1
	for Capacity(depth, nodeLimit) < fileSize {
		depth++
		if depth > 16 {
			return nil, fmt.Errorf("file size %d exceeds addressable capacity", fileSize)
		}
	}
	return fill(fileSize, depth, nodeLimit), nil
}

// fill distributes remaining bytes into a subtree of the given depth.
// The node keeps L - 16*childCount bytes itself; the rest goes to children
// greedily at capacity C(depth-1), leftmost first.
func fill(remaining uint64, depth int, nodeLimit uint64) *Layout {
	if depth == 1 {
		return &Layout{Depth: 1, DataSize: remaining}
	}
	L := UsableSpace(nodeLimit)
	childCap := Capacity(depth-1, nodeLimit)

	childCount := ceilDiv(remaining-L, childCap-KeySize)
	own := L - KeySize*childCount

	l := &Layout{Depth: depth, DataSize: own, Children: make([]*Layout, 0, childCount)}
	rest := remaining - own
	for i := uint64(0); i < childCount; i++ {
		take := min(childCap, rest)
		child := fill(take, minDepthFor(take, nodeLimit), nodeLimit)
		l.Children = append(l.Children, child)
		rest -= take
	}
	return l
}

func minDepthFor(size, nodeLimit uint64) int {
	depth := 1
	for Capacity(depth, nodeLimit) < size {
		depth++
	}
	return depth
}

func ceilDiv(a, b uint64) uint64 {
	return (a + b - 1) / b
}
