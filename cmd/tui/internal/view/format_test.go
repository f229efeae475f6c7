package view

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	type testCase struct {
		in      string
		want    int64
		wantErr bool
	}

	tests := []testCase{
		{in: "95", want: 9500},
		{in: "95.5", want: 9550},
		{in: "£95.05", want: 9505},
		{in: " 0.99 ", want: 99},
		{in: "", wantErr: true},
		{in: "95.", wantErr: true},
		{in: "95.123", wantErr: true},
		{in: "-5", wantErr: true},
		{in: "ten", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "95.00", FormatAmount(9500))
	assert.Equal(t, "0.05", FormatAmount(5))
	assert.Equal(t, "-12.50", FormatAmount(-1250))
}
