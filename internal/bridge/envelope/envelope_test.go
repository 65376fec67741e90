package envelope

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripPreservesTypedArguments(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
	}{
		{
			name: "invocation with mixed arguments",
			msg: New(FuncTestFunction,
				Int(7), String("hello"), Bool(true), Double(2.5), Int(-3)),
		},
		{
			name: "invocation without arguments",
			msg:  NewInvocation(FuncTestFunction, 0),
		},
		{
			name: "execute callback",
			msg:  NewExecuteCallback(42, `{"test":"object"}`),
		},
		{
			name: "dispatch event",
			msg:  NewDispatchJSEvent("obsSourceVisibleChanged", `{"visible":true}`),
		},
		{
			name: "gaps stay null",
			msg:  New(FuncGetSourceInfo, Int(1), Null(), String("")),
		},
		{
			name: "extreme numbers",
			msg:  New(FuncTestFunction, Int(math.MaxInt32), Int(math.MinInt32), Double(1e-300), Double(-0.1)),
		},
		{
			name: "visibility",
			msg:  NewVisibility(false),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Marshal(tt.msg)
			require.NoError(t, err)

			got, err := Unmarshal(data)
			require.NoError(t, err)

			assert.Equal(t, tt.msg.Name, got.Name)
			require.Equal(t, tt.msg.Len(), got.Len())
			for i := range tt.msg.Args {
				assert.Equal(t, tt.msg.Args[i].Kind(), got.Args[i].Kind(), "kind of slot %d", i)
				assert.Equal(t, tt.msg.Args[i].Interface(), got.Args[i].Interface(), "value of slot %d", i)
			}
		})
	}
}

func TestMarshalRejectsEmptyName(t *testing.T) {
	_, err := Marshal(New(""))
	assert.ErrorIs(t, err, ErrEmptyName)

	_, err = Marshal(nil)
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestUnmarshalRejectsUnknownKind(t *testing.T) {
	_, err := Unmarshal([]byte(`{"n":"testFunction","a":[{"t":"object"}]}`))
	assert.ErrorIs(t, err, ErrBadKind)

	_, err = Unmarshal([]byte(`not json`))
	assert.Error(t, err)
}

func TestMissingArgumentsAreAbsent(t *testing.T) {
	msg := New(NameDispatchJSEvent, String("only-name"))

	assert.Equal(t, "only-name", msg.GetString(0))
	assert.False(t, msg.Has(1))
	assert.Equal(t, "", msg.GetString(1))
	assert.Equal(t, int32(0), msg.GetInt(5))
	assert.False(t, msg.GetBool(3))
	assert.Equal(t, 0.0, msg.GetDouble(2))
}

func TestSetPadsWithNull(t *testing.T) {
	msg := New(FuncTestFunction)
	msg.SetString(3, "x")

	require.Equal(t, 4, msg.Len())
	for i := 0; i < 3; i++ {
		assert.True(t, msg.Arg(i).IsNull())
	}
	assert.Equal(t, "x", msg.GetString(3))
}

func TestKnownNames(t *testing.T) {
	assert.True(t, KnownToRenderer(NameVisibility))
	assert.True(t, KnownToRenderer(NameActive))
	assert.True(t, KnownToRenderer(NameDispatchJSEvent))
	assert.True(t, KnownToRenderer(NameExecuteCallback))
	assert.False(t, KnownToRenderer(FuncTestFunction))

	assert.True(t, KnownToBrowser(FuncTestFunction))
	assert.True(t, KnownToBrowser(FuncGetSourceInfo))
	assert.False(t, KnownToBrowser("deleteEverything"))
}

func TestPipeDeliversInOrder(t *testing.T) {
	a, b := NewPipe(8)
	defer a.Close()

	for i := int32(1); i <= 3; i++ {
		require.NoError(t, a.Send(NewInvocation(FuncTestFunction, i)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := int32(1); i <= 3; i++ {
		msg, err := b.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, msg.GetInt(0))
	}
}

func TestPipeDoesNotShareMemory(t *testing.T) {
	a, b := NewPipe(1)
	defer a.Close()

	sent := New(FuncTestFunction, Int(1))
	require.NoError(t, a.Send(sent))
	sent.SetInt(0, 99)

	got, err := b.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), got.GetInt(0))
}

func TestPipeClose(t *testing.T) {
	a, b := NewPipe(1)
	require.NoError(t, b.Close())

	assert.ErrorIs(t, a.Send(NewActive(true)), ErrClosed)

	_, err := a.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPipeReceiveHonoursContext(t *testing.T) {
	a, _ := NewPipe(1)
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := a.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
