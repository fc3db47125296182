package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserTableName(t *testing.T) {
	user := User{}
	assert.Equal(t, "users", user.TableName(), "Table name should be 'users'")
}

func TestUserDefaultValues(t *testing.T) {
	user := User{
		Email: "new@example.com",
	}

	assert.Equal(t, RoleClient, user.Role, "Zero role should be Client")
	assert.False(t, user.IsVerified, "New users should not be verified")
	assert.Nil(t, user.PasswordHash)
}

func TestUserJSONHidesPasswordHash(t *testing.T) {
	hash := "$2a$10$secret"
	user := User{ID: 7, Name: "Anna", Email: "anna@client.com", PasswordHash: &hash, Role: RoleTechnician}

	body, err := json.Marshal(user)
	require.NoError(t, err)

	assert.NotContains(t, string(body), "secret")
	assert.NotContains(t, string(body), "password")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, float64(1), decoded["role"], "Role should serialize as its numeric value")
	assert.Equal(t, false, decoded["isVerified"])
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Role
		wantErr bool
	}{
		{"client by name", "Client", RoleClient, false},
		{"technician lower case", "technician", RoleTechnician, false},
		{"admin by number", "2", RoleAdmin, false},
		{"client by number", "0", RoleClient, false},
		{"unknown number", "5", 0, true},
		{"unknown name", "manager", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRole(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "Client", RoleClient.String())
	assert.Equal(t, "Technician", RoleTechnician.String())
	assert.Equal(t, "Admin", RoleAdmin.String())
	assert.Equal(t, "Role(9)", Role(9).String())
	assert.False(t, Role(9).Valid())
}
