package mutate

import (
	"context"
	"fmt"

	cerrs "github.com/cerberusindex/cerberus/internal/errors"
	"github.com/cerberusindex/cerberus/internal/store"
)

// assessRisk scores how central a symbol is: inbound calls, method calls,
// and resolved references all count as callers.
func assessRisk(ctx context.Context, st store.Store, sym *store.Symbol) (RiskLevel, int, error) {
	callers := 0

	calls, err := st.QueryCalls(ctx, store.CallFilter{Callee: sym.Name})
	if err != nil {
		return RiskLow, 0, err
	}
	for _, call := range calls {
		if call.CallerFile != sym.FilePath {
			callers++
		}
	}

	methodCalls, err := st.QueryMethodCallsFiltered(ctx, store.MethodCallFilter{Method: sym.Name})
	if err != nil {
		return RiskLow, 0, err
	}
	callers += len(methodCalls)

	refs, err := st.QuerySymbolReferencesFiltered(ctx, store.SymbolReferenceFilter{TargetSymbol: sym.Name})
	if err != nil {
		return RiskLow, 0, err
	}
	callers += len(refs)

	switch {
	case callers >= highRiskCallers:
		return RiskHigh, callers, nil
	case callers >= mediumRiskCallers:
		return RiskMedium, callers, nil
	default:
		return RiskLow, callers, nil
	}
}

// guard enforces the symbol-guard policy: a HIGH verdict refuses the
// mutation unless forced.
func guard(ctx context.Context, st store.Store, sym *store.Symbol, force, disabled bool) (RiskLevel, error) {
	if disabled {
		return "", nil
	}
	risk, callers, err := assessRisk(ctx, st, sym)
	if err != nil {
		return "", err
	}
	if risk == RiskHigh && !force {
		return risk, cerrs.PolicyError(cerrs.ErrCodeSymbolGuard,
			fmt.Sprintf("%q has %d callers; HIGH risk mutation refused", sym.Name, callers)).
			WithSuggestion("re-run with --force to override the guard")
	}
	return risk, nil
}
