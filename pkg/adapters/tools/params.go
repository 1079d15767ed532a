package tools

import (
	"fmt"
	"strings"

	"github.com/conduitci/conduit/pkg/ports"
)

// ResolveParam resolves a stage parameter value. Values of the form
// "@stage/artifact" are dereferenced through the run's artifact store;
// anything else is returned literally. Dereferencing is only valid for
// artifacts of declared dependencies - the executor's dependency gating
// guarantees the producer has completed.
func ResolveParam(sc ports.StageContext, value string) (string, error) {
	if !strings.HasPrefix(value, "@") {
		return value, nil
	}
	stageID, name, ok := strings.Cut(value[1:], "/")
	if !ok || stageID == "" || name == "" {
		return "", fmt.Errorf("invalid artifact reference %q, want @stage/artifact", value)
	}
	ref, err := sc.Artifacts.Get(stageID, name)
	if err != nil {
		return "", err
	}
	return ref.Reference, nil
}

// RequireParam fetches a mandatory stage parameter, resolving artifact
// references.
func RequireParam(sc ports.StageContext, key string) (string, error) {
	value, ok := sc.Params[key]
	if !ok || value == "" {
		return "", fmt.Errorf("missing required param %q", key)
	}
	return ResolveParam(sc, value)
}

// OptionalParam fetches an optional stage parameter, resolving artifact
// references. Absent keys yield the fallback.
func OptionalParam(sc ports.StageContext, key, fallback string) (string, error) {
	value, ok := sc.Params[key]
	if !ok || value == "" {
		return fallback, nil
	}
	return ResolveParam(sc, value)
}
