package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJaroWinkler_BothEmpty(t *testing.T) {
	assert.Equal(t, 1.0, JaroWinkler("", ""))
}

func TestJaroWinkler_OneEmpty(t *testing.T) {
	assert.Equal(t, 0.0, JaroWinkler("abc", ""))
	assert.Equal(t, 0.0, JaroWinkler("", "abc"))
}

func TestJaroWinkler_Identical(t *testing.T) {
	assert.Equal(t, 1.0, JaroWinkler("본봄", "본봄"))
	assert.Equal(t, 1.0, JaroWinkler("Acme Corp", "Acme Corp"))
}

func TestJaroWinkler_CaseSensitive(t *testing.T) {
	assert.Less(t, JaroWinkler("Acme", "acme"), 1.0)
}

func TestJaroWinkler_CompletelyDifferent(t *testing.T) {
	assert.Less(t, JaroWinkler("abc", "xyz"), 0.3)
}

func TestJaroWinkler_CommonPrefixBoostsScore(t *testing.T) {
	withoutPrefix := JaroWinkler("martha", "marhta")
	assert.Greater(t, withoutPrefix, 0.9)
}

func TestJaroWinkler_KoreanSubstring(t *testing.T) {
	sim := JaroWinkler("신세계", "신세계인터내셔널")
	assert.Greater(t, sim, 0.8)
	assert.Less(t, sim, 1.0)
}

func TestFuzzyMatch_BothNilMatch(t *testing.T) {
	assert.True(t, FuzzyMatch(nil, nil, 0.85))
}

func TestFuzzyMatch_OneNilNeverMatches(t *testing.T) {
	s := "x"
	assert.False(t, FuzzyMatch(&s, nil, 0.85))
	assert.False(t, FuzzyMatch(nil, &s, 0.85))
}

func TestFuzzyMatch_ThresholdIsInclusive(t *testing.T) {
	a, b := "abc", "abc"
	assert.True(t, FuzzyMatch(&a, &b, 1.0))
}
