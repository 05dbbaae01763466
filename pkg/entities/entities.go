// Package entities suggests creditor names for the debt form.
package entities

import "strings"

// Known lists the Colombian financial entities offered as creditors.
var Known = []string{
	"Bancolombia",
	"Agaval",
	"Banco de Bogota",
	"Davivienda",
	"Banco de Occidente",
	"Banco Popular",
	"Banco Agrario de Colombia",
	"BBVA Colombia",
	"Banco AV Villas",
	"Banco Caja Social",
	"Banco GNB Sudameris",
	"Scotiabank Colpatria",
	"Banco Pichincha",
	"Bancoomeva",
	"Banco W",
	"Banco Finandina",
	"Banco Falabella",
	"Bancamía",
	"Banco Credifinanciera",
	"Banco Coopcentral",
}

// Suggest returns the known entities containing query, ignoring case, in list
// order. An empty query returns nil.
func Suggest(query string) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var out []string
	for _, name := range Known {
		if strings.Contains(strings.ToLower(name), q) {
			out = append(out, name)
		}
	}
	return out
}
