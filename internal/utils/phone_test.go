package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "010-1234-5678", NormalizePhone(" 01012345678 "))
	assert.Equal(t, "010-1234-5678", NormalizePhone("010-1234-5678"))
	assert.Equal(t, "02-123-4567", NormalizePhone("02-123-4567"))
}

func TestValidPhone(t *testing.T) {
	assert.True(t, ValidPhone("010-1234-5678"))
	assert.False(t, ValidPhone("011-1234-5678"))
	assert.False(t, ValidPhone("010-123-5678"))
	assert.False(t, ValidPhone("01012345678"))
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "010-****-5678", MaskPhone("010-1234-5678"))
	assert.Equal(t, "****", MaskPhone("123"))
}

func TestHashPhone(t *testing.T) {
	h := HashPhone("010-1234-5678")
	assert.Len(t, h, 16)
	assert.Equal(t, h, HashPhone("010-1234-5678"))
	assert.NotEqual(t, h, HashPhone("010-1234-5679"))
}
