package models

import (
	"strconv"
	"strings"
)

// Handle names shared by several node types.
const (
	HandleDefault = "default"
	HandleElse    = "else"
	HandleText    = "text"
	HandleNoMatch = "no-match"
	HandleTimeout = "timeout"
	HandleError   = "error"
)

// Connection is a directed edge between two nodes. SourceHandle selects which
// output of the source node the edge is bound to.
type Connection struct {
	ID           string `json:"id"`
	Source       string `json:"source"                 validate:"required"`
	Target       string `json:"target"                 validate:"required"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// ConditionHandle returns the handle of the i-th condition branch.
func ConditionHandle(i int) string {
	return "condition-" + strconv.Itoa(i)
}

// OptionHandle returns the handle of the i-th input option.
func OptionHandle(i int) string {
	return "option" + strconv.Itoa(i)
}

// ToolHandle returns the handle of the i-th openai tool.
func ToolHandle(i int) string {
	return "tool-" + strconv.Itoa(i)
}

// ParseIndexedHandle splits handles such as "condition-2" or "option0" into
// their prefix and index.
func ParseIndexedHandle(handle string) (string, int, bool) {
	for _, prefix := range []string{"condition-", "option", "tool-"} {
		rest, found := strings.CutPrefix(handle, prefix)
		if !found {
			continue
		}

		i, err := strconv.Atoi(rest)
		if err != nil || i < 0 {
			return "", 0, false
		}

		return prefix, i, true
	}

	return "", 0, false
}

// Handles derives the outgoing handles the node exposes from its current
// configuration. Nothing is stored: removing an option or a condition removes
// its handle on the next call.
func (n *Node) Handles() []string {
	switch data := n.Data.(type) {
	case *ConditionData:
		handles := make([]string, 0, len(data.Conditions)+1)
		for i := range data.Conditions {
			handles = append(handles, ConditionHandle(i))
		}

		return append(handles, HandleElse)
	case *InputData:
		if data.InputType == InputTypeOptions {
			handles := make([]string, 0, len(data.Options)+2)
			for i := range data.Options {
				handles = append(handles, OptionHandle(i))
			}

			return append(handles, HandleNoMatch, HandleTimeout)
		}

		return []string{HandleText, HandleTimeout}
	case *OpenAIData:
		handles := make([]string, 0, len(data.Tools)+2)
		handles = append(handles, HandleDefault)

		for i := range data.Tools {
			handles = append(handles, ToolHandle(i))
		}

		return append(handles, HandleError)
	case *RequestData, *AgentIAData:
		return []string{HandleDefault, HandleError}
	case *JumpToData, *GroupData:
		return nil
	case nil:
		if n.Type == NodeTypeJumpTo || n.Type == NodeTypeGroup {
			return nil
		}

		return []string{HandleDefault}
	default:
		return []string{HandleDefault}
	}
}

// HasHandle reports whether handle is currently exposed by the node. An empty
// handle is the implicit output of single-output nodes.
func (n *Node) HasHandle(handle string) bool {
	handle = n.normalizeHandle(handle)

	for _, h := range n.Handles() {
		if h == handle {
			return true
		}
	}

	return false
}

func (n *Node) normalizeHandle(handle string) string {
	if handle != "" {
		return handle
	}

	handles := n.Handles()
	if len(handles) > 0 && (handles[0] == HandleDefault || handles[0] == HandleText) {
		return handles[0]
	}

	return handle
}
