package transact

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewBufferSizesByDeclaredTotals(t *testing.T) {
	b := NewBuffer(KindTrans2, 1, 8, 16)
	require.Equal(t, KindTrans2, b.Kind)
	require.Equal(t, uint16(1), b.SubFunction)
	require.Len(t, b.Param, 8)
	require.Len(t, b.Data, 16)
}

func TestPutParamWritesAtDisplacement(t *testing.T) {
	b := NewBuffer(KindTrans, 0, 8, 0)
	require.NoError(t, b.PutParam(0, []byte{1, 2, 3}))
	require.NoError(t, b.PutParam(3, []byte{4, 5}))
	require.Equal(t, []byte{1, 2, 3, 4, 5, 0, 0, 0}, b.Param)
}

func TestPutParamRejectsOutOfRange(t *testing.T) {
	b := NewBuffer(KindTrans, 0, 4, 0)
	err := b.PutParam(3, []byte{1, 2})
	require.ErrorIs(t, err, ErrFragmentOutOfRange)
}

func TestPutDataOutOfOrderFragments(t *testing.T) {
	b := NewBuffer(KindNTTransact, 0, 0, 6)
	require.NoError(t, b.PutData(3, []byte{4, 5, 6}))
	require.NoError(t, b.PutData(0, []byte{1, 2, 3}))
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6}, b.Data)
}

func TestPutDataRejectsOutOfRange(t *testing.T) {
	b := NewBuffer(KindTrans, 0, 0, 4)
	err := b.PutData(2, []byte{1, 2, 3})
	require.ErrorIs(t, err, ErrFragmentOutOfRange)
}

func TestReadyRequiresBothTotals(t *testing.T) {
	b := NewBuffer(KindTrans2, 0, 8, 16)
	require.False(t, b.Ready(0, 0))
	require.False(t, b.Ready(8, 0))
	require.False(t, b.Ready(0, 16))
	require.True(t, b.Ready(8, 16))
	require.True(t, b.Ready(100, 100), "receiving more than declared still counts as ready")
}

func TestReadyWithZeroTotals(t *testing.T) {
	b := NewBuffer(KindTrans, 0, 0, 0)
	require.True(t, b.Ready(0, 0))
}
