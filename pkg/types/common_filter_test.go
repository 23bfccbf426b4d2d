package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommonFilter_Validate(t *testing.T) {
	allowed := map[string]struct{}{"status": {}, "created_at": {}}

	cases := []struct {
		name    string
		filter  CommonFilter
		wantErr bool
	}{
		{"eq ok", CommonFilter{Field: "status", Operator: CommonFilterOperatorEq, Values: []any{"ACTIVE"}}, false},
		{"field not allowed", CommonFilter{Field: "password_hash", Operator: CommonFilterOperatorEq, Values: []any{"x"}}, true},
		{"eq needs one value", CommonFilter{Field: "status", Operator: CommonFilterOperatorEq}, true},
		{"date range ok", CommonFilter{Field: "created_at", Operator: CommonFilterOperatorDateRange, Values: []any{"2026-01-01", "2026-02-01"}}, false},
		{"range needs two", CommonFilter{Field: "created_at", Operator: CommonFilterOperatorRange, Values: []any{1}}, true},
		{"in needs values", CommonFilter{Field: "status", Operator: CommonFilterOperatorIn}, true},
		{"unknown operator", CommonFilter{Field: "status", Operator: "like", Values: []any{"x"}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.filter.Validate(allowed)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
