package visits

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsConfirmationReply(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"Sim", true},
		{"sim, confirmo", true},
		{"Não", true},
		{"nao vou poder", true},
		{"vou sim!", true},
		{"pode cancelar", true},
		{"quero um apartamento de 2 quartos na aldeota com varanda e vista para o mar por favor", false},
		{"bom dia", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsConfirmationReply(tc.in), tc.in)
	}
}

func TestIsAffirmative(t *testing.T) {
	assert.True(t, IsAffirmative("Sim"))
	assert.True(t, IsAffirmative("confirmo"))
	assert.True(t, IsAffirmative("vou sim"))
	assert.True(t, IsAffirmative("irei"))
	assert.False(t, IsAffirmative("não"))
	assert.False(t, IsAffirmative("cancela por favor"))
	assert.False(t, IsAffirmative("nao vou poder"))
	assert.False(t, IsAffirmative("não, pode cancelar"))
	assert.False(t, IsAffirmative("nao irei"))
}

func TestParseFeedbackScore(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"5", 5},
		{"nota 4", 4},
		{"dou um 3 pro atendimento", 3},
		{"1", 1},
		{"6", 0},
		{"10", 0},
		{"otimo atendimento", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseFeedbackScore(tc.in), tc.in)
	}
}
