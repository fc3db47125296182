package controllers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/smartfix-dev/smartfix-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceCatalogEndpoints(t *testing.T) {
	env := setupTestEnv(t)
	olga := env.createUser(t, "Olga", "olga@example.com", models.RoleClient)
	admin := env.createUser(t, "Root", "root@example.com", models.RoleAdmin)

	w := env.do(http.MethodPost, "/api/v1/services", env.tokenFor(t, admin),
		`{"name": "Screen replacement", "description": "OEM parts", "price": 89.90}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := dataObject(t, w)
	assert.Equal(t, "Screen replacement", created["name"])
	assert.Equal(t, 89.9, created["price"])
	path := fmt.Sprintf("/api/v1/services/%d", uint(created["id"].(float64)))

	t.Run("anyone signed in can read", func(t *testing.T) {
		list := env.do(http.MethodGet, "/api/v1/services", env.tokenFor(t, olga), nil)
		require.Equal(t, http.StatusOK, list.Code)
		assert.Len(t, dataList(t, list), 1)

		one := env.do(http.MethodGet, path, env.tokenFor(t, olga), nil)
		require.Equal(t, http.StatusOK, one.Code)
		assert.Equal(t, "OEM parts", dataObject(t, one)["description"])
	})

	t.Run("clients cannot write", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/v1/services", env.tokenFor(t, olga), `{"name": "x", "price": 1}`)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("admin updates the price", func(t *testing.T) {
		w := env.do(http.MethodPut, path, env.tokenFor(t, admin), `{"price": 99.5}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		data := dataObject(t, w)
		assert.Equal(t, 99.5, data["price"])
		assert.Equal(t, "Screen replacement", data["name"])
	})

	t.Run("admin deletes", func(t *testing.T) {
		w := env.do(http.MethodDelete, path, env.tokenFor(t, admin), nil)
		require.Equal(t, http.StatusOK, w.Code)

		missing := env.do(http.MethodGet, path, env.tokenFor(t, admin), nil)
		assert.Equal(t, http.StatusNotFound, missing.Code)
	})
}

func TestCreateServiceValidation(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.createUser(t, "Root", "root@example.com", models.RoleAdmin)

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"price": 10}`},
		{"missing price", `{"name": "Battery"}`},
		{"negative price", `{"name": "Battery", "price": -1}`},
		{"too many decimals", `{"name": "Battery", "price": 10.999}`},
		{"blank name", `{"name": "  ", "price": 10}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/v1/services", env.tokenFor(t, admin), tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))
		})
	}
}
