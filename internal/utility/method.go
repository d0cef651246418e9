// Package utility implements a utility-based decision engine.
// A Decider scores a set of Actions through their Considerations every
// update, keeps exactly one Action active, and drives start/update/stop
// callbacks when the winner changes.
package utility

// Method selects how a Consideration's score is folded into its Action's
// running score.
type Method uint8

const (
	MethodStandard Method = iota // Defer to the owning Action's standard method
	MethodMultiply               // Any zero vetoes the action
	MethodMax
	MethodMin
	MethodAdd
	MethodAverage // Each score contributes score/n
)

// String returns the long method name.
func (m Method) String() string {
	switch m {
	case MethodMultiply:
		return "multiply"
	case MethodMax:
		return "max"
	case MethodMin:
		return "min"
	case MethodAdd:
		return "add"
	case MethodAverage:
		return "average"
	default:
		return "standard"
	}
}

// ShortString returns the three-letter label used in debug output.
func (m Method) ShortString() string {
	switch m {
	case MethodMultiply:
		return "MUL"
	case MethodMax:
		return "MAX"
	case MethodMin:
		return "MIN"
	case MethodAdd:
		return "ADD"
	case MethodAverage:
		return "AVG"
	default:
		return "STD"
	}
}

// effective resolves a consideration tag against the action's standard method.
// A standard method that is itself MethodStandard folds as multiply.
func effective(tag, standard Method) Method {
	if tag != MethodStandard {
		return tag
	}
	if standard == MethodStandard {
		return MethodMultiply
	}
	return standard
}

// fold applies one step of the aggregation table.
func fold(acc, score float64, m Method, n int) float64 {
	switch m {
	case MethodMax:
		if score > acc {
			return score
		}
		return acc
	case MethodMin:
		if score < acc {
			return score
		}
		return acc
	case MethodAdd:
		return acc + score
	case MethodAverage:
		return acc + score/float64(n)
	default:
		return acc * score
	}
}
