package huffman

import (
	"container/heap"
)

// Node is a Huffman tree node: either a *Leaf or an *Internal.
type Node interface {
	Weight() uint64
	node()
}

// Leaf holds one symbol weighted by its frequency.
type Leaf struct {
	Symbol Symbol
	weight uint64
}

// Weight returns the symbol frequency.
func (l *Leaf) Weight() uint64 { return l.weight }

func (*Leaf) node() {}

// Internal owns exactly two children. Left is reached with bit 0, Right with
// bit 1.
type Internal struct {
	Left   Node
	Right  Node
	weight uint64
}

// Weight returns the sum of both children's weights.
func (n *Internal) Weight() uint64 { return n.weight }

func (*Internal) node() {}

// queued orders nodes by weight, then by sequence. Leaves take the canonical
// index of their symbol; merged nodes take increasing numbers after that.
type queued struct {
	node Node
	seq  int
}

type nodeHeap []queued

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	wi, wj := h[i].node.Weight(), h[j].node.Weight()
	if wi != wj {
		return wi < wj
	}
	return h[i].seq < h[j].seq
}
func (h nodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x interface{}) {
	*h = append(*h, x.(queued))
}
func (h *nodeHeap) Pop() interface{} {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}

// BuildTree builds the Huffman tree of a frequency table.
//
// The two lightest nodes are merged repeatedly; the first removed becomes the
// left child. Ties are broken by sequence number, which makes the tree a pure
// function of the table's content. An empty table yields a nil root; a table
// with one symbol yields that symbol's *Leaf as root.
func BuildTree(freqs *FrequencyTable) Node {
	entries := freqs.Entries()
	if len(entries) == 0 {
		return nil
	}

	h := make(nodeHeap, 0, len(entries))
	for i, e := range entries {
		h = append(h, queued{node: &Leaf{Symbol: e.Symbol, weight: e.Count}, seq: i})
	}
	heap.Init(&h)

	seq := len(entries)
	for h.Len() > 1 {
		left := heap.Pop(&h).(queued)
		right := heap.Pop(&h).(queued)
		merged := &Internal{
			Left:   left.node,
			Right:  right.node,
			weight: left.node.Weight() + right.node.Weight(),
		}
		heap.Push(&h, queued{node: merged, seq: seq})
		seq++
	}
	return h[0].node
}

// Depth returns the number of edges on the longest root-to-leaf path.
func Depth(root Node) int {
	switch n := root.(type) {
	case *Internal:
		l, r := Depth(n.Left), Depth(n.Right)
		if l > r {
			return l + 1
		}
		return r + 1
	default:
		return 0
	}
}
