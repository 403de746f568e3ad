// Package billing implements NGAP procedure coding: a rule-based code
// suggestion from patient age and consultation motif, the code catalogue
// with tariffs, and quote computation.
package billing

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Code is one NGAP catalogue entry.
type Code struct {
	Code       string  `json:"code"`
	Libelle    string  `json:"libelle"`
	Tarif      float64 `json:"tarif"`
	Conditions string  `json:"conditions"`
}

// Primary consultation codes, in catalogue order.
var primaryCodes = []Code{
	{Code: "C", Libelle: "Consultation au cabinet", Tarif: 25, Conditions: "Consultation de base"},
	{Code: "CS", Libelle: "Consultation avec majoration", Tarif: 46, Conditions: "Consultation complexe ou urgente"},
	{Code: "COE", Libelle: "Consultation obligatoire de l'enfant", Tarif: 47, Conditions: "Suivi du nourrisson de moins de 2 ans"},
	{Code: "V", Libelle: "Visite à domicile", Tarif: 25, Conditions: "Déplacement au domicile"},
	{Code: "VS", Libelle: "Visite à domicile avec majoration", Tarif: 46, Conditions: "Visite urgente ou complexe"},
}

// Supplementary procedure codes that can be toggled on top of a primary code.
var supplementCodes = []Code{
	{Code: "K", Libelle: "Acte technique (coefficient 1)", Tarif: 2.28, Conditions: "Geste technique simple"},
	{Code: "KC", Libelle: "Acte technique (coefficient 2)", Tarif: 4.56, Conditions: "Geste technique complexe"},
	{Code: "AMI", Libelle: "Acte médical d'imagerie", Tarif: 19.06, Conditions: "Échographie, radiologie"},
	{Code: "MD", Libelle: "Majoration de déplacement", Tarif: 5, Conditions: "Supplément déplacement"},
}

// Keyword sets for the suggestion rules. Matching is accent and case
// insensitive so "fievre" and "fièvre" hit the same rule.
var (
	pediatricKeywords = []string{"vaccin", "vaccination", "suivi", "controle"}
	complexKeywords   = []string{"urgence", "douleur", "fievre", "complex"}
)

// PrimaryCodes returns the primary consultation catalogue.
func PrimaryCodes() []Code {
	out := make([]Code, len(primaryCodes))
	copy(out, primaryCodes)
	return out
}

// SupplementCodes returns the supplementary procedure catalogue.
func SupplementCodes() []Code {
	out := make([]Code, len(supplementCodes))
	copy(out, supplementCodes)
	return out
}

// Lookup finds a catalogue entry by code.
func Lookup(code string) (Code, bool) {
	for _, c := range primaryCodes {
		if c.Code == code {
			return c, true
		}
	}
	for _, c := range supplementCodes {
		if c.Code == code {
			return c, true
		}
	}
	return Code{}, false
}

// SuggestCode maps patient age and consultation motif to a suggested primary
// NGAP code. Rules apply in priority order: a child under 24 months with a
// well-visit motif gets COE, a motif suggesting urgency or complexity gets
// CS, anything else gets the base C. An empty motif yields no suggestion.
// The suggestion is advisory only; the physician applies it explicitly.
func SuggestCode(age int, unit string, motif string) string {
	folded := foldText(motif)
	if folded == "" {
		return ""
	}

	if AgeInMonths(age, unit) < 24 && containsAny(folded, pediatricKeywords) {
		return "COE"
	}
	if containsAny(folded, complexKeywords) {
		return "CS"
	}
	return "C"
}

// AgeInMonths normalizes an age to months. Units are the French labels used
// on the consultation form; anything but "mois" counts as years.
func AgeInMonths(age int, unit string) int {
	if strings.EqualFold(strings.TrimSpace(unit), "mois") {
		return age
	}
	return age * 12
}

// Quote computes the running total: the selected primary code's tariff plus
// every toggled supplement's tariff. A supplement counts once no matter how
// often it appears; unknown codes are ignored.
func Quote(primary string, supplements []string) float64 {
	total := 0.0
	if c, ok := Lookup(primary); ok {
		total += c.Tarif
	}
	seen := make(map[string]bool, len(supplements))
	for _, s := range supplements {
		if seen[s] {
			continue
		}
		seen[s] = true
		if c, ok := Lookup(s); ok {
			total += c.Tarif
		}
	}
	return total
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// foldText lowercases and strips diacritics for keyword matching.
func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return folded
}
