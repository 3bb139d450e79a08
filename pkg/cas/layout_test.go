package cas

import "testing"

// Small limits keep the trees inspectable: nodeLimit 64 gives L=48,
// C(1)=48, C(2)=144, C(3)=432.
const testNodeLimit = 64

func TestCapacity(t *testing.T) {
	if got := Capacity(1, testNodeLimit); got != 48 {
		t.Fatalf("C(1) = %d, want 48", got)
	}
	if got := Capacity(2, testNodeLimit); got != 144 {
		t.Fatalf("C(2) = %d, want 144", got)
	}
	if got := Capacity(3, testNodeLimit); got != 432 {
		t.Fatalf("C(3) = %d, want 432", got)
	}
}

func TestComputeLayoutLeaf(t *testing.T) {
	for _, size := range []uint64{0, 1, 47, 48} {
		l, err := ComputeLayout(size, testNodeLimit)
		if err != nil {
			t.Fatalf("ComputeLayout(%d) failed: %v", size, err)
		}
		if l.Depth != 1 || len(l.Children) != 0 || l.DataSize != size {
			t.Fatalf("size %d: got %+v, want single leaf", size, l)
		}
	}
}

func TestComputeLayoutTwoLevels(t *testing.T) {
	l, err := ComputeLayout(100, testNodeLimit)
	if err != nil {
		t.Fatalf("ComputeLayout failed: %v", err)
	}
	if l.Depth != 2 {
		t.Fatalf("depth = %d, want 2", l.Depth)
	}
	// childCount = ceil((100-48)/(48-16)) = 2, own = 48 - 32 = 16.
	if l.DataSize != 16 || len(l.Children) != 2 {
		t.Fatalf("root own=%d children=%d, want 16/2", l.DataSize, len(l.Children))
	}
	if l.Children[0].DataSize != 48 || l.Children[1].DataSize != 36 {
		t.Fatalf("children = %d,%d, want 48,36 (greedy leftmost)", l.Children[0].DataSize, l.Children[1].DataSize)
	}
}

// The layout is a pure function of (fileSize, nodeLimit): its data sums to
// fileSize, node counts stay within limits, and recomputation is identical.
func TestLayoutSumProperty(t *testing.T) {
	maxSize := Capacity(3, testNodeLimit)
	for size := uint64(0); size <= maxSize; size++ {
		l, err := ComputeLayout(size, testNodeLimit)
		if err != nil {
			t.Fatalf("ComputeLayout(%d) failed: %v", size, err)
		}
		if got := l.TotalSize(); got != size {
			t.Fatalf("size %d: layout sums to %d", size, got)
		}
		checkLayoutShape(t, l, size)

		l2, _ := ComputeLayout(size, testNodeLimit)
		if !layoutsEqual(l, l2) {
			t.Fatalf("size %d: layout not deterministic", size)
		}
	}
}

func checkLayoutShape(t *testing.T, l *Layout, size uint64) {
	t.Helper()
	L := UsableSpace(testNodeLimit)
	if l.DataSize+KeySize*uint64(len(l.Children)) > L {
		t.Fatalf("size %d: node overflows usable space: own=%d children=%d", size, l.DataSize, len(l.Children))
	}
	if len(l.Children) > 0 && l.DataSize != L-KeySize*uint64(len(l.Children)) {
		t.Fatalf("size %d: non-leaf node not fully packed: own=%d children=%d", size, l.DataSize, len(l.Children))
	}
	for _, c := range l.Children {
		if c.Depth >= l.Depth {
			t.Fatalf("size %d: child depth %d not below parent depth %d", size, c.Depth, l.Depth)
		}
		checkLayoutShape(t, c, size)
	}
}

func layoutsEqual(a, b *Layout) bool {
	if a.Depth != b.Depth || a.DataSize != b.DataSize || len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		if !layoutsEqual(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}

func TestComputeLayoutRejectsBadLimit(t *testing.T) {
	if _, err := ComputeLayout(100, 63); err == nil {
		t.Fatal("expected error for non-multiple-of-16 limit")
	}
	if _, err := ComputeLayout(100, 48); err == nil {
		t.Fatal("expected error for too-small limit")
	}
}
