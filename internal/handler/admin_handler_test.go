package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeLifecycle struct {
	loads, saves int
	err          error
}

func (f *fakeLifecycle) Load(context.Context) error {
	f.loads++
	return f.err
}

func (f *fakeLifecycle) Save(context.Context) error {
	f.saves++
	return f.err
}

func TestAdminHandlerSaveAndReload(t *testing.T) {
	lifecycle := &fakeLifecycle{}
	handler := NewAdminHandler(lifecycle)

	c, rec := newTestContext(http.MethodPost, "/admin/timetable/save", adminClaims)
	handler.Save(c)
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = newTestContext(http.MethodPost, "/admin/timetable/reload", adminClaims)
	handler.Reload(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, lifecycle.saves)
	assert.Equal(t, 1, lifecycle.loads)

	lifecycle.err = errors.New("disk full")
	c, rec = newTestContext(http.MethodPost, "/admin/timetable/save", adminClaims)
	handler.Save(c)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
