package controllers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreateUserRejectsUnknownRole(t *testing.T) {
	body := `{"first_name":"Awa","last_name":"Diallo","phone":"770000000","role":"storekeeper","password":"pw"}`
	w := postJSON(t, CreateUser, nil, body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Role")
}

func TestCreateUserRequiresFields(t *testing.T) {
	w := postJSON(t, CreateUser, nil, `{"role":"admin"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
