package problems

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase(t *testing.T) {
	t.Setenv("PROBLEM_BASE_URL", "")
	t.Setenv("BASE_PUBLIC_URL", "https://gw.example.com/")
	assert.Equal(t, "https://gw.example.com/problems/forbidden", Type("forbidden"))

	t.Setenv("PROBLEM_BASE_URL", "https://docs.example.com/errors/")
	assert.Equal(t, "https://docs.example.com/errors/forbidden", Type("forbidden"))
}

func TestWrite(t *testing.T) {
	t.Setenv("PROBLEM_BASE_URL", "https://docs.example.com/errors")
	rec := httptest.NewRecorder()
	Write(rec, http.StatusForbidden, "forbidden", "Forbidden", "policy CanManageUsers not satisfied")

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p Problem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	assert.Equal(t, Problem{
		Type:   "https://docs.example.com/errors/forbidden",
		Title:  "Forbidden",
		Status: http.StatusForbidden,
		Detail: "policy CanManageUsers not satisfied",
	}, p)
}
