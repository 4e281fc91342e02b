package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentfleet/watchtower/pkg/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.Status
		allowed  bool
	}{
		{models.StatusIdle, models.StatusActive, true},
		{models.StatusIdle, models.StatusComplete, true},
		{models.StatusIdle, models.StatusError, true},
		{models.StatusIdle, models.StatusHandoff, false},
		{models.StatusActive, models.StatusActive, true},
		{models.StatusActive, models.StatusHandoff, true},
		{models.StatusActive, models.StatusComplete, true},
		{models.StatusActive, models.StatusError, true},
		{models.StatusHandoff, models.StatusActive, true},
		{models.StatusHandoff, models.StatusComplete, false},
		{models.StatusError, models.StatusActive, true},
		{models.StatusError, models.StatusComplete, false},
		{models.StatusComplete, models.StatusActive, false},
		{models.StatusComplete, models.StatusError, false},
		{models.StatusComplete, models.StatusComplete, true},
	}

	for _, tt := range tests {
		got := CanTransition(tt.from, tt.to)
		assert.Equal(t, tt.allowed, got, "%s -> %s", tt.from, tt.to)
	}
}
