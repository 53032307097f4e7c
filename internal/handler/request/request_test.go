package request

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		id      string
		want    Action
		wantErr bool
	}{
		{"claim_droptip_7", Action{Kind: ActionClaim, DroptipID: 7}, false},
		{ClaimActionID(1234567890), Action{Kind: ActionClaim, DroptipID: 1234567890}, false},
		{"claim_droptip_", Action{}, true},
		{"claim_droptip_0", Action{}, true},
		{"claim_droptip_-1", Action{}, true},
		{"claim_droptip_7x", Action{}, true},
		{"refund_droptip_7", Action{}, true},
		{"", Action{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := ParseAction(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "claim", got.Kind.String())
		})
	}
}
