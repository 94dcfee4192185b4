package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFoldToken(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"novo", "novo"},
		{" Em Andamento ", "em_andamento"},
		{"CONCLUÍDO", "concluido"},
		{"em-andamento", "em_andamento"},
		{"", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, FoldToken(tc.in))
		})
	}
}

func TestFoldName(t *testing.T) {
	assert.Equal(t, "joao da silva", FoldName("  João  da Silva "))
	assert.Equal(t, FoldName("ANA SOUZA"), FoldName("Ana  Souza"))
}

func TestKeepDigitsAndAlphanumeric(t *testing.T) {
	assert.Equal(t, "12345678909", KeepDigits("123.456.789-09"))
	assert.Equal(t, "AB12", KeepAlphanumeric("ab-1.2"))
	assert.Equal(t, "", KeepDigits("n/a"))
}
