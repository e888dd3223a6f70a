package rssl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_BufferToRawHexDump(t *testing.T) {
	data := make([]byte, 19)
	for i := range data {
		data[i] = byte(i)
	}
	assert.Equal(t,
		"0001 0203 0405 0607 0809 0a0b 0c0d 0e0f\n1011 12\n",
		BufferToRawHexDump(data))
	assert.Equal(t, "", BufferToRawHexDump(nil))
}

func Test_BufferToHexDump(t *testing.T) {
	s := BufferToHexDump([]byte("hi"))
	assert.Contains(t, s, "00000000  68 69")
	assert.Contains(t, s, "|hi|")
}
