package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectPropertySelectionQuoted(t *testing.T) {
	sel := DetectPropertySelection("quero visitar esse", true)
	assert.True(t, sel.HasSelection)
	assert.Equal(t, SelectionQuoted, sel.Type)
	assert.Equal(t, IntentSchedule, sel.Intent)

	sel = DetectPropertySelection("gostei muito", true)
	assert.True(t, sel.HasSelection)
	assert.Equal(t, SelectionQuoted, sel.Type)
	assert.Equal(t, IntentInterest, sel.Intent)
}

func TestDetectPropertySelectionKeyword(t *testing.T) {
	sel := DetectPropertySelection("gostei desse, quando posso visitar?", false)
	assert.True(t, sel.HasSelection)
	assert.Equal(t, SelectionKeyword, sel.Type)
	assert.Equal(t, IntentSchedule, sel.Intent)

	sel = DetectPropertySelection("prefiro o segundo", false)
	assert.True(t, sel.HasSelection)
	assert.Equal(t, IntentInterest, sel.Intent)
}

func TestDetectPropertySelectionWantsMoreOptions(t *testing.T) {
	sel := DetectPropertySelection("gostei, mas tem outras opções?", false)
	assert.False(t, sel.HasSelection)
	assert.Equal(t, SelectionNone, sel.Type)
}

func TestDetectPropertySelectionNone(t *testing.T) {
	sel := DetectPropertySelection("bom dia, tudo bem?", false)
	assert.False(t, sel.HasSelection)
	assert.Equal(t, IntentNone, sel.Intent)
}
