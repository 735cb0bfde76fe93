package value

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traintastic/traintastic-go/internal/errs"
)

func TestToInt_RoundsHalfToEven(t *testing.T) {
	cases := []struct {
		in   float64
		want int64
	}{
		{0.5, 0},
		{1.5, 2},
		{2.5, 2},
		{-0.5, 0},
		{-1.5, -2},
	}
	for _, c := range cases {
		got, err := ToInt(NewFloat(c.in))
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "round(%v)", c.in)
	}
}

func TestToInt_InfAndNaNAreOutOfRange(t *testing.T) {
	_, err := ToInt(NewFloat(math.Inf(1)))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.Sentinel(errs.OutOfRange))

	_, err = ToInt(NewFloat(math.NaN()))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.Sentinel(errs.OutOfRange))
}

func TestBoolean_NotImplicitlyConvertible(t *testing.T) {
	_, err := ToBool(NewInt(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.Sentinel(errs.ConversionError))

	_, err = ToInt(NewBool(true))
	require.Error(t, err)
}

func TestFloatJSON_SpecialValues(t *testing.T) {
	cases := []struct {
		f    float64
		want string
	}{
		{math.Inf(1), `"Inf"`},
		{math.Inf(-1), `"-Inf"`},
		{math.NaN(), `"NaN"`},
	}
	for _, c := range cases {
		b, err := json.Marshal(NewFloat(c.f))
		require.NoError(t, err)
		assert.Equal(t, c.want, string(b))

		decoded, err := DecodeAs(b, Float, nil, nil)
		require.NoError(t, err)
		if math.IsNaN(c.f) {
			assert.True(t, math.IsNaN(decoded.FloatVal))
		} else {
			assert.Equal(t, c.f, decoded.FloatVal)
		}
	}
}

func TestToEnum_CaseSensitiveExactMatch(t *testing.T) {
	values := EnumValues{"Forward": 0, "Reverse": 1}

	v, err := ToEnum("Forward", values)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v.IntVal)

	_, err = ToEnum("forward", values)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.Sentinel(errs.ConversionError))
}

func TestToSet_RejectsBitsOutsideMask(t *testing.T) {
	values := SetValues{"a": 1, "b": 2}

	_, err := ToSet(3, values)
	require.NoError(t, err)

	_, err = ToSet(4, values)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.Sentinel(errs.ConversionError))
}

func TestObjectJSON_NullRoundTrip(t *testing.T) {
	b, err := json.Marshal(NewObject(ObjectRef{}))
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))

	decoded, err := DecodeAs(b, Object, nil, nil)
	require.NoError(t, err)
	assert.True(t, decoded.ObjRef.IsNull())

	b, err = json.Marshal(NewObject(NewObjectRef("train1")))
	require.NoError(t, err)
	assert.Equal(t, `"train1"`, string(b))
}
