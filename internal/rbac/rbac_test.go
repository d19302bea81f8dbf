package rbac_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/mind-engage/mindengage-assessment/internal/rbac"
)

func TestChecker_Has(t *testing.T) {
	c := rbac.NewChecker(nil)

	assert.True(t, c.Has(rbac.RoleStudent, "attempt:submit"))
	assert.False(t, c.Has(rbac.RoleStudent, "exam:create"))
	assert.False(t, c.Has(rbac.RoleStudent, "attempt:view-all"))
	assert.True(t, c.Has(rbac.RoleTeacher, "exam:publish"))
	assert.False(t, c.Has(rbac.RoleTeacher, "events:read"))
	assert.True(t, c.Has(rbac.RoleAdmin, "events:read"))
	assert.False(t, c.Has("guest", "exam:view"))
	assert.True(t, c.Any(rbac.RoleStudent, "attempt:view-all", "attempt:view-own"))
}

func TestChecker_PrefixWildcard(t *testing.T) {
	c := rbac.NewChecker(map[string][]string{"grader": {"attempt:*"}})
	assert.True(t, c.Has("grader", "attempt:view-all"))
	assert.False(t, c.Has("grader", "exam:view"))
}

func TestRequireTeacherOrAdmin(t *testing.T) {
	assert.NoError(t, rbac.RequireTeacherOrAdmin(rbac.RoleTeacher))
	assert.NoError(t, rbac.RequireTeacherOrAdmin(rbac.RoleAdmin))
	assert.True(t, errors.Is(rbac.RequireTeacherOrAdmin(rbac.RoleStudent), rbac.ErrForbidden))
	assert.True(t, errors.Is(rbac.RequireTeacherOrAdmin(""), rbac.ErrForbidden))
}

func TestRequireOwner(t *testing.T) {
	assert.NoError(t, rbac.RequireOwner("s1", "s1"))
	assert.True(t, errors.Is(rbac.RequireOwner("s1", "s2"), rbac.ErrForbidden))
	assert.True(t, errors.Is(rbac.RequireOwner("", ""), rbac.ErrForbidden))
}

func TestRequireMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name string
		p    *rbac.Principal
		mw   func(http.Handler) http.Handler
		want int
	}{
		{"no principal", nil, rbac.Require("exam:view"), http.StatusForbidden},
		{"student allowed", &rbac.Principal{UserID: "s1", Role: rbac.RoleStudent}, rbac.Require("exam:view"), http.StatusNoContent},
		{"student denied", &rbac.Principal{UserID: "s1", Role: rbac.RoleStudent}, rbac.Require("exam:create"), http.StatusForbidden},
		{"any of", &rbac.Principal{UserID: "t1", Role: rbac.RoleTeacher}, rbac.RequireAny("attempt:view-own", "attempt:view-all"), http.StatusNoContent},
		{"admin wildcard", &rbac.Principal{UserID: "a1", Role: rbac.RoleAdmin}, rbac.Require("events:read"), http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.p != nil {
				req = req.WithContext(rbac.WithPrincipal(req.Context(), *tt.p))
			}
			rec := httptest.NewRecorder()
			tt.mw(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestPrincipalFromContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := rbac.PrincipalFromContext(req.Context())
	assert.False(t, ok)

	ctx := rbac.WithPrincipal(req.Context(), rbac.Principal{UserID: "t1", Role: rbac.RoleTeacher})
	assert.Equal(t, "t1", rbac.SubjectFromContext(ctx))
	assert.Equal(t, rbac.RoleTeacher, rbac.RoleFromContext(ctx))
	assert.True(t, rbac.Can(req.WithContext(ctx), "exam:view-answers"))
}
