package llm

import (
	"github.com/voxloop-go/voxloop/pkg/core/types"
)

// RepairRoleOrder merges adjacent non-system messages that share a role, so
// the outgoing conversation never carries back-to-back same-role messages.
// The later message's content is appended to the earlier one behind a blank
// text-part separator, and tool calls are unioned. System messages are
// exempt from the adjacency check and never merged.
func RepairRoleOrder(messages []types.Message) []types.Message {
	out := make([]types.Message, 0, len(messages))

	for _, msg := range messages {
		if msg.Role == types.RoleSystem {
			out = append(out, msg)
			continue
		}

		prev := lastNonSystem(out)
		if prev == nil || prev.Role != msg.Role {
			out = append(out, msg)
			continue
		}

		// Merge into a fresh slice. Appending through prev in place could
		// write into the caller's backing array when it has spare capacity.
		merged := make([]types.ContentBlock, 0, len(prev.Content)+1+len(msg.Content))
		merged = append(merged, prev.Content...)
		merged = append(merged, types.NewTextBlock(""))
		merged = append(merged, msg.Content...)
		prev.Content = merged
		prev.ToolCalls = unionToolCalls(prev.ToolCalls, msg.ToolCalls)
	}

	return out
}

func lastNonSystem(messages []types.Message) *types.Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != types.RoleSystem {
			return &messages[i]
		}
	}
	return nil
}

func unionToolCalls(a, b []types.ToolCall) []types.ToolCall {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]struct{}, len(a))
	for _, call := range a {
		seen[call.ID] = struct{}{}
	}
	for _, call := range b {
		if _, ok := seen[call.ID]; ok {
			continue
		}
		a = append(a, call)
	}
	return a
}
