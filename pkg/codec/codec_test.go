package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/habit-engine/internal/domain/buddy"
	"github.com/alem-hub/habit-engine/internal/domain/coaching"
	"github.com/alem-hub/habit-engine/internal/domain/streak"
)

func TestRoundTrip_StreakState(t *testing.T) {
	for _, e := range []*streak.Engine{streak.Linear(), streak.Milestone()} {
		for _, days := range []int{0, 1, 7, 12, 365} {
			want := e.At(days)

			data, err := Serialize(want)
			require.NoError(t, err)

			got, err := Parse[streak.State](data)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	}
}

func TestRoundTrip_Bundle(t *testing.T) {
	want := coaching.Bundle{
		Notification: "Perfect coffee moment!",
		HabitTip:     "Stack learning with the coffee ritual.",
		Motivation:   "🔥 Day 7 streak!",
	}

	data, err := Serialize(want)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"habitTip"`)

	got, err := Parse[coaching.Bundle](data)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRoundTrip_Result(t *testing.T) {
	for _, score := range []int{0, 69, 70, 84, 85, 98} {
		want := buddy.NewResult(score)

		data, err := Serialize(want)
		require.NoError(t, err)

		got, err := Parse[buddy.Result](data)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestSerialize_WireFormat(t *testing.T) {
	data, err := Serialize(streak.Linear().At(7))
	require.NoError(t, err)
	assert.JSONEq(t, `{"days":7,"multiplier":1.4,"policy":"linear"}`, string(data))

	data, err = Serialize(buddy.NewResult(98))
	require.NoError(t, err)
	assert.JSONEq(t, `{"score":98,"tier":"high"}`, string(data))
}

func TestParse_RejectsBrokenInvariants(t *testing.T) {
	tests := []struct {
		name  string
		parse func() error
	}{
		{"tampered multiplier", func() error {
			_, err := Parse[streak.State]([]byte(`{"days":7,"multiplier":9.9,"policy":"linear"}`))
			return err
		}},
		{"days out of range", func() error {
			_, err := Parse[streak.State]([]byte(`{"days":400,"multiplier":1.0,"policy":"milestone"}`))
			return err
		}},
		{"tier mismatch", func() error {
			_, err := Parse[buddy.Result]([]byte(`{"score":90,"tier":"low"}`))
			return err
		}},
		{"empty bundle", func() error {
			_, err := Parse[coaching.Bundle]([]byte(`{}`))
			return err
		}},
		{"unknown field", func() error {
			_, err := Parse[buddy.Result]([]byte(`{"score":90,"tier":"high","bonus":1}`))
			return err
		}},
		{"trailing data", func() error {
			_, err := Parse[buddy.Result]([]byte(`{"score":90,"tier":"high"} {}`))
			return err
		}},
		{"not json", func() error {
			_, err := Parse[buddy.Result]([]byte(`score=90`))
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.parse()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPayload))
		})
	}
}

func TestSerialize_RejectsInvalid(t *testing.T) {
	_, err := Serialize(buddy.Result{Score: 120, Tier: buddy.TierHigh})
	assert.Error(t, err)
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, map[string]int{"days": 3}))
	assert.Equal(t, "{\"days\":3}\n", buf.String())
}
