package controllers

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/smartfix-dev/smartfix-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommentLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	olga := env.createUser(t, "Olga", "olga@example.com", models.RoleClient)
	ivan := env.createUser(t, "Ivan", "ivan@example.com", models.RoleTechnician)
	admin := env.createUser(t, "Root", "root@example.com", models.RoleAdmin)
	req := env.createRequest(t, olga.ID, uintPtr(ivan.ID), models.StatusInProgress)

	first := env.do(http.MethodPost, "/api/v1/comments", env.tokenFor(t, olga),
		map[string]interface{}{"repairRequestId": req.ID, "text": "When will it be ready?"})
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	created := dataObject(t, first)
	assert.Equal(t, float64(olga.ID), created["authorUserId"])
	assert.Equal(t, "Olga", created["authorName"])

	time.Sleep(5 * time.Millisecond)
	second := env.do(http.MethodPost, "/api/v1/comments", env.tokenFor(t, ivan),
		map[string]interface{}{"repairRequestId": req.ID, "text": "Tomorrow"})
	require.Equal(t, http.StatusCreated, second.Code)

	list := env.do(http.MethodGet, fmt.Sprintf("/api/v1/comments/%d", req.ID), env.tokenFor(t, olga), nil)
	require.Equal(t, http.StatusOK, list.Code)
	items := dataList(t, list)
	require.Len(t, items, 2)
	assert.Equal(t, "When will it be ready?", items[0].(map[string]interface{})["text"])
	assert.Equal(t, "Ivan", items[1].(map[string]interface{})["authorName"])

	commentID := uint(created["id"].(float64))
	path := fmt.Sprintf("/api/v1/comments/%d", commentID)

	t.Run("author edits", func(t *testing.T) {
		w := env.do(http.MethodPut, path, env.tokenFor(t, olga), map[string]string{"text": "Any news?"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "Any news?", dataObject(t, w)["text"])
	})

	t.Run("someone else cannot edit", func(t *testing.T) {
		w := env.do(http.MethodPut, path, env.tokenFor(t, ivan), map[string]string{"text": "hijack"})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("only admins delete", func(t *testing.T) {
		w := env.do(http.MethodDelete, path, env.tokenFor(t, olga), nil)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = env.do(http.MethodDelete, path, env.tokenFor(t, admin), nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = env.do(http.MethodDelete, path, env.tokenFor(t, admin), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAddCommentValidation(t *testing.T) {
	env := setupTestEnv(t)
	olga := env.createUser(t, "Olga", "olga@example.com", models.RoleClient)
	petr := env.createUser(t, "Petr", "petr@example.com", models.RoleClient)
	req := env.createRequest(t, olga.ID, nil, models.StatusNew)

	tests := []struct {
		name           string
		caller         *models.User
		body           map[string]interface{}
		expectedStatus int
	}{
		{"missing text", olga, map[string]interface{}{"repairRequestId": req.ID}, http.StatusBadRequest},
		{"blank text", olga, map[string]interface{}{"repairRequestId": req.ID, "text": "   "}, http.StatusBadRequest},
		{"text too long", olga, map[string]interface{}{"repairRequestId": req.ID, "text": strings.Repeat("a", 4001)}, http.StatusBadRequest},
		{"missing request id", olga, map[string]interface{}{"text": "hi"}, http.StatusBadRequest},
		{"unknown request", olga, map[string]interface{}{"repairRequestId": 999, "text": "hi"}, http.StatusNotFound},
		{"request not visible", petr, map[string]interface{}{"repairRequestId": req.ID, "text": "hi"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/v1/comments", env.tokenFor(t, tt.caller), tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
		})
	}

	hidden := env.do(http.MethodGet, fmt.Sprintf("/api/v1/comments/%d", req.ID), env.tokenFor(t, petr), nil)
	assert.Equal(t, http.StatusNotFound, hidden.Code)
}
