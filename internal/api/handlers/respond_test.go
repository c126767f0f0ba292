package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"

	"github.com/wonny/sysmetic/backend/internal/contracts"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{contracts.ErrInvalidInput, http.StatusBadRequest},
		{fmt.Errorf("strategy 3: %w", contracts.ErrStrategyNotFound), http.StatusNotFound},
		{contracts.ErrDayNotFound, http.StatusNotFound},
		{contracts.ErrDuplicateDay, http.StatusConflict},
		{contracts.ErrOutOfOrderDay, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: %w", contracts.ErrIncompletePopulation, errors.New("conn reset")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}

func TestStrategyIDVar(t *testing.T) {
	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": "42"})
	id, err := strategyIDVar(req)
	assert.NoError(t, err)
	assert.Equal(t, int64(42), id)

	req = mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": "0"})
	_, err = strategyIDVar(req)
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)
}
