// Package id issues the int64 row IDs for tasks, commitments, contacts and
// voice profiles. Queue jobs use UUIDs instead.
package id

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

// MaxNodeID is the largest node a relay instance may claim with the
// library's default 10 node bits.
const MaxNodeID = 1023

var (
	mu   sync.Mutex
	node *snowflake.Node
)

// Init claims nodeID for this process. The first successful call wins and
// later calls are no-ops, so test suites sharing a binary can each call it.
func Init(nodeID int64) error {
	if nodeID < 0 || nodeID > MaxNodeID {
		return fmt.Errorf("snowflake node %d out of range [0, %d]", nodeID, MaxNodeID)
	}

	mu.Lock()
	defer mu.Unlock()
	if node != nil {
		return nil
	}
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return fmt.Errorf("creating snowflake node: %w", err)
	}
	node = n
	return nil
}

// New returns a time-ordered ID. It falls back to node 0 if Init was never
// called.
func New() int64 {
	mu.Lock()
	n := node
	mu.Unlock()
	if n == nil {
		if err := Init(0); err != nil {
			panic(err)
		}
		return New()
	}
	return n.Generate().Int64()
}
