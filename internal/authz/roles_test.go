package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRole(t *testing.T) {
	assert.Equal(t, RoleDoctor, NormalizeRole(""))
	assert.Equal(t, RoleDoctor, NormalizeRole("doctor"))
	assert.Equal(t, RoleUser, NormalizeRole("user"))
	assert.Equal(t, RoleDoctor, NormalizeRole("admin"))
}
