package domain

import "testing"

func TestValidateWhere(t *testing.T) {
	tests := []struct {
		name    string
		items   []Where
		wantErr bool
	}{
		{"empty", nil, false},
		{"leaf", []Where{{Type: WhereEquals, Attribute: "status", Value: "Active"}}, false},
		{"null check", []Where{{Type: WhereIsNull, Attribute: "city"}}, false},
		{
			"nested group",
			[]Where{{Type: WhereOr, Items: []Where{
				{Type: WhereEquals, Attribute: "type", Value: "Villa"},
				{Type: WhereAnd, Items: []Where{{Type: WhereGreaterThan, Attribute: "price", Value: 100000}}},
			}}},
			false,
		},
		{"unknown type", []Where{{Type: "between", Attribute: "price"}}, true},
		{"missing attribute", []Where{{Type: WhereEquals, Value: "x"}}, true},
		{"empty group", []Where{{Type: WhereAnd}}, true},
		{"bad child", []Where{{Type: WhereOr, Items: []Where{{Type: WhereLike}}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWhere(tt.items)
			if tt.wantErr {
				if !IsValidation(err) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestWhere_IsGroup(t *testing.T) {
	if !(Where{Type: WhereAnd}).IsGroup() || !(Where{Type: WhereOr}).IsGroup() {
		t.Error("and/or should be groups")
	}
	if (Where{Type: WhereEquals}).IsGroup() {
		t.Error("equals should not be a group")
	}
}
