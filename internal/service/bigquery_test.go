package service

import (
	"database/sql"
	"testing"
)

func TestQueryParameters(t *testing.T) {
	params, err := queryParameters([]any{sql.Named("owner_id", "u1")})
	if err != nil {
		t.Fatalf("queryParameters() error = %v", err)
	}
	if len(params) != 1 || params[0].Name != "owner_id" || params[0].Value != "u1" {
		t.Fatalf("params = %+v", params)
	}
	if got := ownerFromParams(params); got != "u1" {
		t.Errorf("owner = %q, want u1", got)
	}

	if _, err := queryParameters([]any{"u1"}); err == nil {
		t.Error("positional arguments must be rejected")
	}
}
