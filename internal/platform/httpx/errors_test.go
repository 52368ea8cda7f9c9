package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tally-crm/tally/internal/shared"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("get invoice: %w", shared.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: invoice PAID -> SENT", shared.ErrInvalidTransition), http.StatusConflict},
		{shared.NewValidationError("hours", "must be positive"), http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		assert.Equal(t, tc.code, rr.Code, tc.err.Error())
	}
}

func TestRespondErrorIncludesFields(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("snooze: %w", shared.NewValidationError("hours", "must be between 1 and 720")))

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "must be between 1 and 720", body.Fields["hours"])
}
