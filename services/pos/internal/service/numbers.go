package service

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// OrderNumberer hands out human-facing ticket numbers.
type OrderNumberer interface {
	Next() string
}

// SnowflakeNumberer renders snowflake ids in base36, which keeps ticket
// numbers short, sortable by creation time and unique across instances with
// distinct node ids.
type SnowflakeNumberer struct {
	node *snowflake.Node
}

// NewSnowflakeNumberer creates a numberer for the given node (0-1023).
func NewSnowflakeNumberer(nodeID int64) (*SnowflakeNumberer, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node: %w", err)
	}
	return &SnowflakeNumberer{node: node}, nil
}

// Next returns a new order number.
func (n *SnowflakeNumberer) Next() string {
	return strings.ToUpper(n.node.Generate().Base36())
}
