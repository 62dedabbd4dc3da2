// Package validate checks generated dashboards and rules: every PromQL
// expression must parse and reference only known metric names.
package validate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/grafana/grafana-foundation-sdk/go/dashboard"
	"github.com/prometheus/prometheus/promql/parser"

	"github.com/RaydowCharole/AppStoreIapScript/tools/dashgen/rules"
)

// histogramSuffixes are the series a histogram exposes beyond its base name.
var histogramSuffixes = []string{"_bucket", "_sum", "_count"}

// Result collects problems found during validation. Errors make the
// artifact unusable; warnings are worth a look.
type Result struct {
	Errors   []string
	Warnings []string
}

// Ok reports whether validation found no errors.
func (r Result) Ok() bool {
	return len(r.Errors) == 0
}

func (r *Result) merge(other Result) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Expr parses a single PromQL expression and checks its metric names.
func Expr(where, expr string, known map[string]bool) Result {
	var res Result

	node, err := parser.ParseExpr(expr)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("%s: parsing %q: %v", where, expr, err))
		return res
	}

	for _, name := range metricNames(node) {
		if !isKnown(name, known) {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: unknown metric %q", where, name))
		}
	}
	return res
}

// Dashboard validates every query target in a built dashboard.
func Dashboard(dash dashboard.Dashboard, known map[string]bool) Result {
	var res Result

	raw, err := json.Marshal(dash)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("encoding dashboard: %v", err))
		return res
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("decoding dashboard: %v", err))
		return res
	}

	walkPanels(doc["panels"], func(panel map[string]any) {
		title, _ := panel["title"].(string)
		if panel["type"] == "row" {
			return
		}
		targets, _ := panel["targets"].([]any)
		if len(targets) == 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("panel %q has no queries", title))
			return
		}
		for _, t := range targets {
			target, _ := t.(map[string]any)
			expr, _ := target["expr"].(string)
			if strings.TrimSpace(expr) == "" {
				res.Errors = append(res.Errors, fmt.Sprintf("panel %q: empty query", title))
				continue
			}
			res.merge(Expr(fmt.Sprintf("panel %q", title), expr, known))
		}
	})
	return res
}

// Rules validates every expression in a PrometheusRule CR. Records defined
// in the CR count as known for the rules after them.
func Rules(cr rules.PrometheusRule, known map[string]bool) Result {
	var res Result

	names := make(map[string]bool, len(known))
	for k, v := range known {
		names[k] = v
	}

	for _, g := range cr.Spec.Groups {
		for _, r := range g.Rules {
			id := r.Record
			if id == "" {
				id = r.Alert
			}
			where := fmt.Sprintf("%s/%s", g.Name, id)
			if r.Record == "" && r.Alert == "" {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: rule has neither record nor alert", g.Name))
				continue
			}
			res.merge(Expr(where, r.Expr, names))
			if r.Record != "" {
				names[r.Record] = true
			}
			if r.Alert != "" && r.Annotations["summary"] == "" {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s: missing summary annotation", where))
			}
		}
	}
	return res
}

func walkPanels(v any, fn func(map[string]any)) {
	list, _ := v.([]any)
	for _, p := range list {
		panel, ok := p.(map[string]any)
		if !ok {
			continue
		}
		fn(panel)
		walkPanels(panel["panels"], fn)
	}
}

func metricNames(node parser.Node) []string {
	seen := make(map[string]bool)
	parser.Inspect(node, func(n parser.Node, _ []parser.Node) error {
		if vs, ok := n.(*parser.VectorSelector); ok && vs.Name != "" {
			seen[vs.Name] = true
		}
		return nil
	})

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func isKnown(name string, known map[string]bool) bool {
	if known[name] {
		return true
	}
	for _, suffix := range histogramSuffixes {
		if base, ok := strings.CutSuffix(name, suffix); ok && known[base] {
			return true
		}
	}
	return false
}
