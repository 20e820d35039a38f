package downlink

import (
	"sync"

	"github.com/lumigrid/lumigrid-core/internal/node"
)

// FanOutResult reports the per-node outcome of a config fan-out.
type FanOutResult struct {
	// Total is how many nodes were attempted.
	Total int

	// Succeeded is how many publishes the broker accepted.
	Succeeded int

	// Failures holds one entry per node whose publish failed.
	Failures []NodeFailure
}

// NodeFailure is a single node's publish failure within a fan-out.
type NodeFailure struct {
	NodeID string
	Err    error
}

// Failed reports whether any publish in the batch failed.
func (r *FanOutResult) Failed() bool {
	return len(r.Failures) > 0
}

// FanOutConfig publishes each node's schedule config under a concurrency
// cap.
//
// A gateway can own up to 50 nodes; publishing 50 configs at once would
// saturate the shared broker connection and starve control publishes. The
// cap bounds simultaneous in-flight publishes while the whole batch still
// runs to completion: one node's failure never cancels its siblings, and
// the result collects every per-node outcome.
//
// Parameters:
//   - gatewayRef: The {gw} topic segment for the owning gateway
//   - nodes: The nodes whose configs to push
//   - concurrency: Max simultaneous publishes (values < 1 mean 1)
//
// Returns:
//   - FanOutResult: Per-node outcomes; check Failed() for partial failure
func (p *Publisher) FanOutConfig(gatewayRef string, nodes []node.Node, concurrency int) FanOutResult {
	if concurrency < 1 {
		concurrency = 1
	}

	result := FanOutResult{Total: len(nodes)}
	if len(nodes) == 0 {
		return result
	}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, concurrency)
	)

	for i := range nodes {
		n := nodes[i]
		wg.Add(1)
		go func() {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			err := p.PublishNodeConfig(gatewayRef, &n)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failures = append(result.Failures, NodeFailure{NodeID: n.NodeID, Err: err})
			} else {
				result.Succeeded++
			}
		}()
	}

	wg.Wait()
	return result
}
