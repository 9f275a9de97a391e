package discount

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ConditionType enumerates the restriction and scoping rules a discount may carry.
type ConditionType string

const (
	ConditionCustomerGroup  ConditionType = "customer_group"
	ConditionZone           ConditionType = "zone"
	ConditionUser           ConditionType = "user"
	ConditionPartnerTier    ConditionType = "partner_tier"
	ConditionProduct        ConditionType = "product"
	ConditionCategory       ConditionType = "category"
	ConditionBrand          ConditionType = "brand"
	ConditionCollection     ConditionType = "collection"
	ConditionAttributeValue ConditionType = "attribute_value"
	ConditionCartTotal      ConditionType = "cart_total"
	ConditionItemQty        ConditionType = "item_qty"
)

// Scope reports whether the condition type restricts the discount to
// matching cart lines.
func (t ConditionType) Scope() bool {
	switch t {
	case ConditionProduct, ConditionCategory, ConditionBrand, ConditionCollection, ConditionAttributeValue:
		return true
	default:
		return false
	}
}

// Threshold reports whether the condition type compares a cart aggregate
// against a value.
func (t ConditionType) Threshold() bool {
	return t == ConditionCartTotal || t == ConditionItemQty
}

// Operator compares a cart aggregate with a threshold condition value.
type Operator string

const (
	OpEqualsTo    Operator = "equals_to"
	OpNotEqualsTo Operator = "not_equals_to"
	OpLessThan    Operator = "less_than"
	OpGreaterThan Operator = "greater_than"
)

// ErrUnsupportedOperator is returned for operators the engine does not evaluate.
var ErrUnsupportedOperator = errors.New("unsupported condition operator")

// ParseOperator validates a stored operator. An empty operator means equals_to.
func ParseOperator(s string) (Operator, error) {
	switch op := Operator(strings.ToLower(strings.TrimSpace(s))); op {
	case "":
		return OpEqualsTo, nil
	case OpEqualsTo, OpNotEqualsTo, OpLessThan, OpGreaterThan:
		return op, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedOperator, "operator %q", s)
	}
}

// Compare evaluates "actual <op> expected".
func (op Operator) Compare(actual, expected decimal.Decimal) bool {
	switch op {
	case OpEqualsTo:
		return actual.Equal(expected)
	case OpNotEqualsTo:
		return !actual.Equal(expected)
	case OpLessThan:
		return actual.LessThan(expected)
	case OpGreaterThan:
		return actual.GreaterThan(expected)
	default:
		return false
	}
}

// Condition is a parsed restriction attached to a discount. Only the fields
// relevant to its Type are populated.
type Condition struct {
	Type     ConditionType
	Operator Operator
	// IDs holds entity ids for id-list conditions.
	IDs []int64
	// Tiers holds lower-cased partner tiers.
	Tiers []string
	// Threshold is the comparison value of cart_total / item_qty conditions.
	Threshold decimal.NullDecimal
}

// Passes reports whether value satisfies a threshold condition. Conditions
// without a parseable threshold always pass.
func (c Condition) Passes(value decimal.Decimal) bool {
	if !c.Threshold.Valid {
		return true
	}
	return c.Operator.Compare(value, c.Threshold.Decimal)
}

// allowedIDs returns the union of ids across conditions.
func allowedIDs(conds []Condition) map[int64]struct{} {
	set := make(map[int64]struct{})
	for _, c := range conds {
		for _, id := range c.IDs {
			set[id] = struct{}{}
		}
	}
	return set
}

// allowedTiers returns the union of partner tiers across conditions.
func allowedTiers(conds []Condition) map[string]struct{} {
	set := make(map[string]struct{})
	for _, c := range conds {
		for _, t := range c.Tiers {
			set[t] = struct{}{}
		}
	}
	return set
}
