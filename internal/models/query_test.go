package models

import (
	"testing"
)

func TestKeywordQuery_Validate(t *testing.T) {
	tests := []struct {
		name    string
		query   *KeywordQuery
		wantErr bool
	}{
		{"empty query", &KeywordQuery{Query: ""}, true},
		{"valid query", &KeywordQuery{Query: "hello"}, false},
		{"sets default limit", &KeywordQuery{Query: "x", Limit: 0}, false},
		{"caps limit at 100", &KeywordQuery{Query: "x", Limit: 200}, false},
		{"clamps negative offset", &KeywordQuery{Query: "x", Offset: -3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				if tt.query.Limit == 0 {
					t.Error("expected default limit to be set")
				}
				if tt.query.Limit > 100 {
					t.Errorf("expected limit capped at 100, got %d", tt.query.Limit)
				}
				if tt.query.Offset < 0 {
					t.Errorf("expected offset >= 0, got %d", tt.query.Offset)
				}
			}
		})
	}
}
