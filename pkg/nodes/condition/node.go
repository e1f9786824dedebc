package condition

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
)

// Execute returns the handle of the first condition that holds, else HandleElse.
func (n *ConditionNode) Execute(ctx context.Context, execCtx *protocol.ExecutionContext, node *models.Node) (protocol.Result, error) {
	data, ok := node.Data.(*models.ConditionData)
	if !ok {
		return protocol.Result{}, protocol.NewConfigError(node.ID, "data", fmt.Errorf("%w: expected condition data", protocol.ErrInvalidField))
	}

	binding := execCtx.Binding()

	for i, cond := range data.Conditions {
		left, _ := binding.Resolve(variableName(cond.Variable))
		right := binding.Interpolate(cond.Value)

		matched, err := Compare(left, cond.Operator, right)
		if err != nil {
			return protocol.Result{}, protocol.NewConfigError(node.ID, fmt.Sprintf("conditions[%d].operator", i), err)
		}

		if matched {
			execCtx.Logger.DebugContext(ctx, "condition matched",
				"node_id", node.ID, "index", i, "variable", cond.Variable)

			return protocol.Follow(models.ConditionHandle(i)), nil
		}
	}

	return protocol.Follow(models.HandleElse), nil
}

// variableName accepts both "age" and "{{age}}".
func variableName(raw string) string {
	name := strings.TrimSpace(raw)
	name = strings.TrimPrefix(name, "{{")
	name = strings.TrimSuffix(name, "}}")

	return strings.TrimSpace(name)
}

// Compare applies op to left and right. Both sides are compared as numbers
// when they both parse as numbers, otherwise as strings.
func Compare(left string, op models.ConditionOperator, right string) (bool, error) {
	l, lerr := strconv.ParseFloat(strings.TrimSpace(left), 64)
	r, rerr := strconv.ParseFloat(strings.TrimSpace(right), 64)

	if lerr == nil && rerr == nil {
		return compareOrdered(l, op, r)
	}

	return compareOrdered(left, op, right)
}

func compareOrdered[T float64 | string](l T, op models.ConditionOperator, r T) (bool, error) {
	switch op {
	case models.OperatorEqual:
		return l == r, nil
	case models.OperatorNotEqual:
		return l != r, nil
	case models.OperatorGreater:
		return l > r, nil
	case models.OperatorLess:
		return l < r, nil
	case models.OperatorGreaterOrEqual:
		return l >= r, nil
	case models.OperatorLessOrEqual:
		return l <= r, nil
	default:
		return false, fmt.Errorf("%w: unknown operator %q", protocol.ErrInvalidField, op)
	}
}
