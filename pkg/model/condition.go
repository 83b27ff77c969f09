package model

import (
	"strconv"
	"strings"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/common"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/fixedpoint"
	"golang.org/x/xerrors"
)

// Condition is a parsed branch condition.
type Condition struct {
	Op        common.Operator
	Threshold float64
}

// relations is ordered so that two-character tokens match first.
var relations = []struct {
	token string
	op    common.Operator
}{
	{"==", common.Eq},
	{"!=", common.Ne},
	{">=", common.Ge},
	{"<=", common.Le},
	{"=", common.Eq},
	{">", common.Gt},
	{"<", common.Lt},
}

// ParseCondition parses "<relation> <value>". Booleans normalise to 0/1;
// "= other" is a membership test and becomes ">= 1", "!= other" its mirror.
func ParseCondition(s string) (Condition, error) {
	text := strings.TrimSpace(s)
	for _, rel := range relations {
		if !strings.HasPrefix(text, rel.token) {
			continue
		}
		raw := strings.TrimSpace(text[len(rel.token):])
		if raw == "" {
			return Condition{}, xerrors.Errorf("condition %q has no value", s)
		}
		if raw == "other" {
			switch rel.op {
			case common.Eq:
				return Condition{Op: common.Ge, Threshold: 1}, nil
			case common.Ne:
				return Condition{Op: common.Lt, Threshold: 1}, nil
			}
		}
		v, err := strconv.ParseFloat(fixedpoint.Normalize(raw), 64)
		if err != nil {
			return Condition{}, xerrors.Errorf("condition %q: value is not numeric", s)
		}
		return Condition{Op: rel.op, Threshold: v}, nil
	}
	return Condition{}, xerrors.Errorf("condition %q: unknown relation", s)
}

// Holds evaluates the condition on a value already encoded at precision.
func (c Condition) Holds(x int64, precision int) (bool, error) {
	t, err := fixedpoint.EncodeFloat(c.Threshold, precision)
	if err != nil {
		return false, err
	}
	return c.Op.Holds(x, t), nil
}
