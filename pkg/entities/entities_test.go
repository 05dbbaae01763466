package entities

import (
	"reflect"
	"testing"
)

func TestSuggest(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"", nil},
		{"   ", nil},
		{"davi", []string{"Davivienda"}},
		{"COLOMBIA", []string{"Bancolombia", "Banco Agrario de Colombia", "BBVA Colombia"}},
		{"banco w", []string{"Banco W"}},
		{"villas", []string{"Banco AV Villas"}},
		{"nequi", nil},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := Suggest(tt.query)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Suggest(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}
