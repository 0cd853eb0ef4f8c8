package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUpdateType(t *testing.T) {
	tests := []struct {
		in      string
		want    UpdateType
		wantErr bool
	}{
		{"nocheck", UpdateNoCheck, false},
		{"test", UpdateTest, false},
		{"ALWAYS", UpdateAlways, false},
		{" never ", UpdateNever, false},
		{"sometimes", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUpdateType(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResultHelpers(t *testing.T) {
	assert.True(t, TriggerResult{Outcome: OutcomeAccepted}.OK())
	assert.False(t, TriggerResult{Outcome: OutcomeUnreachable}.OK())
	assert.True(t, RunResult{Error: "boom"}.Failed())
	assert.False(t, RunResult{Changed: true}.Failed())

	ev := NewUpdateEvent("gfs", UpdateTest, "api")
	assert.Equal(t, "gfs", ev.Collection)
	assert.False(t, ev.ReceivedAt.IsZero())
}
