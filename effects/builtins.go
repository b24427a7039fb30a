package effects

import (
	"fmt"

	"github.com/petal-labs/ontoflow/graphstore"
)

// RegisterBuiltins registers the generic effect library under the builtin
// source. Called by the engine on every workspace load, before any custom
// registration, so custom effects with the same name win.
func RegisterBuiltins(r *Registry) {
	r.Register("set_property", SetProperty, SourceBuiltin)
	r.Register("adjust_numeric", AdjustNumeric, SourceBuiltin)
	r.Register("update_risk_status", UpdateRiskStatus, SourceBuiltin)
	r.Register("recalculate_valuation", RecalculateValuation, SourceBuiltin)
	r.Register("compute_margin_gap", ComputeMarginGap, SourceBuiltin)
	r.Register("graph_weighted_exposure", GraphWeightedExposure, SourceBuiltin)
}

// SetProperty overwrites one named property with a literal value.
//
// Params: property (string), value (any).
func SetProperty(ctx Context) (Result, error) {
	prop, ok := ctx.Params["property"].(string)
	if !ok || prop == "" {
		return Result{}, fmt.Errorf("set_property: missing 'property' parameter")
	}
	value, ok := ctx.Params["value"]
	if !ok {
		return Result{}, fmt.Errorf("set_property: missing 'value' parameter")
	}
	return Result{
		UpdatedProperties: map[string]any{prop: value},
		OldValues:         map[string]any{prop: ctx.TargetAttrs[prop]},
	}, nil
}

// AdjustNumeric multiplies a numeric property by a factor. A missing
// property defaults to 0.
//
// Params: property (string), factor (number).
func AdjustNumeric(ctx Context) (Result, error) {
	prop, ok := ctx.Params["property"].(string)
	if !ok || prop == "" {
		return Result{}, fmt.Errorf("adjust_numeric: missing 'property' parameter")
	}
	rawFactor, ok := ctx.Params["factor"]
	if !ok {
		return Result{}, fmt.Errorf("adjust_numeric: missing 'factor' parameter")
	}
	factor := toFloat(rawFactor, 0)
	oldValue := toFloat(ctx.TargetAttrs[prop], 0)
	return Result{
		UpdatedProperties: map[string]any{prop: oldValue * factor},
		OldValues:         map[string]any{prop: ctx.TargetAttrs[prop]},
	}, nil
}

// UpdateRiskStatus writes the risk_status property.
//
// Params: status (string, default "HIGH_RISK").
func UpdateRiskStatus(ctx Context) (Result, error) {
	status := paramString(ctx.Params, "status", "HIGH_RISK")
	return Result{
		UpdatedProperties: map[string]any{"risk_status": status},
		OldValues:         map[string]any{"risk_status": ctx.TargetAttrs["risk_status"]},
	}, nil
}

// RecalculateValuation recalculates valuation as old * (1 + shock_factor).
//
// Params: shock_factor (number, default 0).
func RecalculateValuation(ctx Context) (Result, error) {
	oldVal := toFloat(ctx.TargetAttrs["valuation"], 0)
	shock := toFloat(ctx.Params["shock_factor"], 0)
	return Result{
		UpdatedProperties: map[string]any{"valuation": oldVal * (1 + shock)},
		OldValues:         map[string]any{"valuation": ctx.TargetAttrs["valuation"]},
	}, nil
}

// ComputeMarginGap computes
// margin_gap = loan_amount * (1 - collateral_ratio * (1 + stock_change)),
// reading loan_amount and collateral_ratio from the target node and
// stock_change from the parameters.
func ComputeMarginGap(ctx Context) (Result, error) {
	loanAmount := toFloat(ctx.TargetAttrs["loan_amount"], 0)
	collateralRatio := toFloat(ctx.TargetAttrs["collateral_ratio"], 1.0)
	stockChange := toFloat(ctx.Params["stock_change"], 0)
	marginGap := loanAmount * (1 - collateralRatio*(1+stockChange))
	return Result{
		UpdatedProperties: map[string]any{"margin_gap": marginGap},
		OldValues: map[string]any{
			"loan_amount":      ctx.TargetAttrs["loan_amount"],
			"collateral_ratio": ctx.TargetAttrs["collateral_ratio"],
		},
	}, nil
}

// GraphWeightedExposure traverses the target's neighborhood and aggregates
// neighbor[value_property] * edge[weight_property] per edge into the
// target's exposure property.
//
// Params: direction ("in"|"out"|"both", default "out"), edge_type (optional
// filter), value_property (default "valuation"), weight_property (default
// "weight", absent edge weights count as 1.0), aggregation
// ("sum"|"max"|"count", default "sum").
func GraphWeightedExposure(ctx Context) (Result, error) {
	if ctx.Graph == nil {
		return Result{}, fmt.Errorf("graph_weighted_exposure: no graph handle")
	}
	direction := paramString(ctx.Params, "direction", "out")
	edgeType := paramString(ctx.Params, "edge_type", "")
	valueProperty := paramString(ctx.Params, "value_property", "valuation")
	weightProperty := paramString(ctx.Params, "weight_property", "weight")
	aggregation := paramString(ctx.Params, "aggregation", "sum")

	var edges []graphstore.Edge
	if direction == "in" || direction == "both" {
		edges = append(edges, ctx.Graph.InEdges(ctx.TargetID)...)
	}
	if direction == "out" || direction == "both" {
		edges = append(edges, ctx.Graph.OutEdges(ctx.TargetID)...)
	}

	var total, maxVal float64
	count := 0
	for _, edge := range edges {
		if edgeType != "" && edge.Type() != edgeType {
			continue
		}
		neighborID := edge.Target
		if edge.Source != ctx.TargetID {
			neighborID = edge.Source
		}
		neighborAttrs, _ := ctx.Graph.NodeAttrs(neighborID)
		neighborValue := toFloat(neighborAttrs[valueProperty], 0)
		edgeWeight := 1.0
		if w, ok := edge.Attrs[weightProperty]; ok {
			edgeWeight = toFloat(w, 1.0)
		}
		weighted := neighborValue * edgeWeight

		total += weighted
		if weighted > maxVal {
			maxVal = weighted
		}
		count++
	}

	var resultValue any
	switch aggregation {
	case "max":
		resultValue = maxVal
	case "count":
		resultValue = count
	default:
		resultValue = total
	}

	// A node that never had an exposure reads as 0, not null.
	return Result{
		UpdatedProperties: map[string]any{"exposure": resultValue},
		OldValues:         map[string]any{"exposure": toFloat(ctx.TargetAttrs["exposure"], 0)},
	}, nil
}
