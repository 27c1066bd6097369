// README: Snowflake id generation for orders and dishes.
package infra

import (
	"fmt"

	"github.com/bwmarrin/snowflake"

	"potluck/internal/types"
)

// NewIDGenerator returns a generator for time-ordered ids unique to this node.
// Each API instance needs a distinct nodeID.
func NewIDGenerator(nodeID int64) (func() types.ID, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return func() types.ID {
		return types.ID(node.Generate().String())
	}, nil
}
