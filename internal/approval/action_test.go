package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		data    string
		want    Action
		wantErr bool
	}{
		{data: "adm_app:123", want: Approve(123)},
		{data: "adm_rej:5", want: Reject(5)},
		{data: "adm_can:7449421046", want: Cancel(7449421046)},
		{data: "adm_app", wantErr: true},
		{data: "adm_del:1", wantErr: true},
		{data: "adm_app:abc", wantErr: true},
		{data: "adm_app:-3", wantErr: true},
		{data: "send_proof", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			got, err := ParseAction(tt.data)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAction)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.data, got.Encode())
		})
	}
}

func TestIsAction(t *testing.T) {
	assert.True(t, IsAction("adm_app:1"))
	assert.False(t, IsAction("verify_join"))
}
