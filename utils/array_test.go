package utils

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytesToT32(t *testing.T) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(1.5))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(-2.25))

	assert.Equal(t, []float32{1.5, -2.25}, BytesToT32[float32](buf))
	assert.Nil(t, BytesToT32[int32](nil))
}
