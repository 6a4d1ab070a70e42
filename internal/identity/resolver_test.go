package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeToken(t *testing.T) {
	assert.Equal(t, "+5511999998888", NormalizeToken("+55 (11) 99999-8888"))
	assert.Equal(t, "11999998888", NormalizeToken("11 99999 8888"))
	assert.Equal(t, "5511999998888", NormalizeToken("55+11999998888")) // + só vale no início
	assert.Equal(t, "", NormalizeToken(""))
	assert.Equal(t, "", NormalizeToken("abc"))
}
