package octree

import "sync"

// Pool recycles nodes and draw infos between builds. A Pool is safe for
// concurrent use. A nil *Pool allocates fresh values and discards released
// ones.
type Pool struct {
	mu    sync.Mutex
	nodes []*Node
	draws []*DrawInfo
	stats PoolStats
}

// PoolStats counts pool traffic. Values acquired and not yet released are
// owned by live trees.
type PoolStats struct {
	NodesAcquired int
	NodesReleased int
	DrawAcquired  int
	DrawReleased  int
	// NodesFree and DrawFree are the lengths of the free lists.
	NodesFree int
	DrawFree  int
}

// LiveNodes returns the number of nodes acquired and not released.
func (s PoolStats) LiveNodes() int { return s.NodesAcquired - s.NodesReleased }

// LiveDraws returns the number of draw infos acquired and not released.
func (s PoolStats) LiveDraws() int { return s.DrawAcquired - s.DrawReleased }

// NewPool returns an empty pool.
func NewPool() *Pool { return &Pool{} }

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	if p == nil {
		return PoolStats{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.NodesFree = len(p.nodes)
	s.DrawFree = len(p.draws)
	return s
}

func (p *Pool) node() *Node {
	if p == nil {
		return new(Node)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.NodesAcquired++
	if len(p.nodes) == 0 {
		return new(Node)
	}
	n := p.nodes[len(p.nodes)-1]
	p.nodes = p.nodes[:len(p.nodes)-1]
	*n = Node{}
	return n
}

func (p *Pool) drawInfo() *DrawInfo {
	if p == nil {
		return new(DrawInfo)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.DrawAcquired++
	if len(p.draws) == 0 {
		return new(DrawInfo)
	}
	d := p.draws[len(p.draws)-1]
	p.draws = p.draws[:len(p.draws)-1]
	*d = DrawInfo{}
	return d
}

// Release returns n, its draw info and its whole subtree to the pool.
// n must not be used afterwards.
func (p *Pool) Release(n *Node) {
	if p == nil || n == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.release(n)
}

// releaseChildren returns the subtrees of n to the pool and clears its
// child slots. n itself stays owned by the caller.
func (p *Pool) releaseChildren(n *Node) {
	if p == nil {
		n.Children = [8]*Node{}
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, c := range n.Children {
		if c != nil {
			p.release(c)
			n.Children[i] = nil
		}
	}
}

func (p *Pool) release(n *Node) {
	for i, c := range n.Children {
		if c != nil {
			p.release(c)
			n.Children[i] = nil
		}
	}
	if n.Draw != nil {
		p.draws = append(p.draws, n.Draw)
		p.stats.DrawReleased++
		n.Draw = nil
	}
	p.nodes = append(p.nodes, n)
	p.stats.NodesReleased++
}
