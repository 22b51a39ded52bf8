// internal/service/inventory/infrastructure/rule/cel_classifier.go
package rule

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"stocksaga/internal/service/inventory/domain"
)

// Rule 一条告警规则：表达式为真时产生对应类型的告警
type Rule struct {
	Type domain.AlertType
	Expr string
}

// DefaultRules 按顺序匹配，先命中者生效
func DefaultRules() []Rule {
	return []Rule{
		{Type: domain.AlertOutOfStock, Expr: "available <= 0"},
		{Type: domain.AlertLowStock, Expr: "available <= minThreshold"},
	}
}

type compiledRule struct {
	alertType domain.AlertType
	program   cel.Program
}

// CELClassifier 是 domain.AlertClassifier 的实现，规则用 CEL 表达式描述，
// 可用变量：productId, physicalStock, reserved, available, minThreshold
type CELClassifier struct {
	rules []compiledRule
}

// NewCELClassifier 编译全部规则，任何一条不合法都会返回错误
func NewCELClassifier(rules []Rule) (*CELClassifier, error) {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	env, err := cel.NewEnv(
		cel.Variable("productId", cel.IntType),
		cel.Variable("physicalStock", cel.IntType),
		cel.Variable("reserved", cel.IntType),
		cel.Variable("available", cel.IntType),
		cel.Variable("minThreshold", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	c := &CELClassifier{}
	for _, r := range rules {
		if !r.Type.Valid() {
			return nil, fmt.Errorf("unknown alert type %q", r.Type)
		}
		ast, iss := env.Compile(r.Expr)
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("compile rule %s %q: %w", r.Type, r.Expr, iss.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("rule %s %q must evaluate to bool, got %v", r.Type, r.Expr, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("build program for rule %s: %w", r.Type, err)
		}
		c.rules = append(c.rules, compiledRule{alertType: r.Type, program: prg})
	}
	return c, nil
}

// Classify 实现了 domain.AlertClassifier 接口
func (c *CELClassifier) Classify(entry *domain.StockLedgerEntry) (domain.AlertType, bool, error) {
	vars := map[string]any{
		"productId":     entry.ProductID,
		"physicalStock": int64(entry.PhysicalStock),
		"reserved":      int64(entry.Reserved),
		"available":     int64(entry.Available),
		"minThreshold":  int64(entry.MinThreshold),
	}
	for _, r := range c.rules {
		out, _, err := r.program.Eval(vars)
		if err != nil {
			return "", false, fmt.Errorf("evaluate %s rule for product %d: %w", r.alertType, entry.ProductID, err)
		}
		if matched, ok := out.Value().(bool); ok && matched {
			return r.alertType, true, nil
		}
	}
	return "", false, nil
}
