package rssl

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_assemblyTable(t *testing.T) {
	at := newAssemblyTable()
	key := assemblyKey{fragID: 1}

	msg, err := at.start(key, 3, []byte("abc"))
	assert.NoError(t, err)
	assert.Equal(t, "abc", string(msg))
	assert.Zero(t, at.len())

	msg, err = at.start(key, 6, []byte("ab"))
	assert.NoError(t, err)
	assert.Nil(t, msg)
	assert.Equal(t, 1, at.len())
	msg, err = at.add(key, 2, []byte("cd"))
	assert.NoError(t, err)
	assert.Nil(t, msg)
	msg, err = at.add(key, 3, []byte("ef"))
	assert.NoError(t, err)
	assert.Equal(t, "abcdef", string(msg))
	assert.Zero(t, at.len())
}

func Test_assemblyTable_errors(t *testing.T) {
	at := newAssemblyTable()
	key := assemblyKey{fragID: 2, node: NodeID{Addr: 1, Port: 2}}

	_, err := at.start(key, 1, []byte("ab"))
	assert.Error(t, err)
	_, err = at.add(key, 1, []byte("x"))
	assert.Error(t, err)

	_, err = at.start(key, 3, []byte("a"))
	assert.NoError(t, err)
	_, err = at.add(key, 2, []byte("bcd"))
	assert.Error(t, err)
	assert.Zero(t, at.len())
}

func Test_assemblyTable_large_total(t *testing.T) {
	at := newAssemblyTable()
	key := assemblyKey{fragID: 3}

	_, err := at.start(key, math.MaxInt32, []byte("ab"))
	assert.NoError(t, err)
	assert.Equal(t, assemblyInitialCap, cap(at.bufs[key].data))

	total := assemblyInitialCap*2 + 3
	_, err = at.start(key, total, []byte("ab"))
	assert.NoError(t, err)
	chunk := bytes.Repeat([]byte("x"), 1000)
	var msg []byte
	for len(msg) == 0 {
		n := total - len(at.bufs[key].data)
		if n > len(chunk) {
			n = len(chunk)
		}
		msg, err = at.add(key, 0, chunk[:n])
		assert.NoError(t, err)
		if err != nil {
			break
		}
	}
	assert.Len(t, msg, total)
	assert.Equal(t, "abxx", string(msg[:4]))
	assert.Zero(t, at.len())

	_, err = at.start(key, -1, nil)
	assert.Error(t, err)
}
