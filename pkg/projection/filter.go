package projection

import (
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// compiledFilter caches a parsed gojq program so repeated previews of the
// same projection don't re-parse the expression on every call.
type compiledFilter struct {
	expr string
	code *gojq.Code
}

func compileFilter(expr string) (*compiledFilter, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("projection: parse filter expression %q: %w", expr, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("projection: compile filter expression %q: %w", expr, err)
	}
	return &compiledFilter{expr: expr, code: code}, nil
}

// run decodes payload as JSON and streams it through the compiled filter,
// returning the first emitted value. gojq filters can emit zero, one, or
// many values for a single input; the preview surface only ever wants one.
func (f *compiledFilter) run(payload []byte) (any, error) {
	var input any
	if err := json.Unmarshal(payload, &input); err != nil {
		return nil, fmt.Errorf("projection: decode payload for filter: %w", err)
	}

	iter := f.code.Run(input)
	v, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, isErr := v.(error); isErr {
		return nil, fmt.Errorf("projection: evaluate filter %q: %w", f.expr, err)
	}
	return v, nil
}
