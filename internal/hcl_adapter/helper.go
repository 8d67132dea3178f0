package hcl_adapter

import (
	"errors"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// isExprDefined reports whether an attribute was written in the source. The
// decoder fills omitted optional expressions with zero-width placeholders.
func isExprDefined(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	r := expr.Range()
	return r.End.Byte > r.Start.Byte
}

// evalString evaluates expr to a known, non-null string.
func evalString(expr hcl.Expression, evalCtx *hcl.EvalContext) (string, error) {
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return "", diags
	}
	if val.IsNull() {
		return "", errors.New("value must not be null")
	}
	if !val.IsWhollyKnown() {
		return "", errors.New("value must be known")
	}
	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", err
	}
	return str.AsString(), nil
}
