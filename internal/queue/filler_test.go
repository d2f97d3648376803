package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiller_Fill(t *testing.T) {
	t.Parallel()

	hold := &Hold{}
	hold.Remember([]float32{0.1, 0.2, 0.3, 0.4})

	tests := []struct {
		name   string
		filler Filler
		want   []float32
	}{
		{"none", FillNone, []float32{9, 9, 9, 9}},
		{"silence", FillSilence, []float32{0, 0, 0, 0}},
		{"hold", FillHold, []float32{0.3, 0.4, 0.3, 0.4}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			head := []float32{9, 9, 9, 9}
			tc.filler.Fill(head, hold)
			assert.Equal(t, tc.want, head)
		})
	}
}

func TestHold_ZeroValueHoldsSilence(t *testing.T) {
	t.Parallel()

	var h Hold
	head := []float32{5, 5}
	FillHold.Fill(head, &h)
	assert.Equal(t, []float32{0, 0}, head)
}

func TestParseFiller(t *testing.T) {
	t.Parallel()

	f, err := ParseFiller("hold")
	require.NoError(t, err)
	assert.Equal(t, FillHold, f)

	f, err = ParseFiller("")
	require.NoError(t, err)
	assert.Equal(t, FillNone, f)

	_, err = ParseFiller("interpolate")
	assert.Error(t, err)
}
