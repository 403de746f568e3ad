// Package documents composes the paperwork produced at the end of a
// consultation: the referral letter, the patient education sheet, the
// default treatment plan and the work stoppage certificate.
package documents

import (
	"fmt"
	"strings"
	"time"

	"github.com/sano/sano-api/internal/domain/consultation"
)

// Recipient identifies the specialist a referral letter is addressed to.
type Recipient struct {
	Specialist string `json:"specialist"`
	Service    string `json:"service"`
	Hospital   string `json:"hospital"`
}

const referralTemplate = `Cher confrère,

Je vous adresse Monsieur/Madame %s, âgé(e) de %s ans, que je suis pour %s.

ANTÉCÉDENTS:
%s

HISTOIRE DE LA MALADIE:
%s

EXAMEN CLINIQUE:
%s

EXAMENS COMPLÉMENTAIRES:
[Résultats des examens réalisés]

TRAITEMENT ACTUEL:
%s

Je vous serais reconnaissant(e) de bien vouloir donner votre avis sur cette situation et prendre en charge ce patient selon vos recommandations.

Je reste à votre disposition pour tout complément d'information.

Confraternellement,

Dr [Votre nom]
[Spécialité]
[Cabinet/Hôpital]
[Téléphone/Email]`

// ReferralLetter fills the confraternal letter template from the patient and
// consultation. Empty fields keep their bracketed placeholder so the letter
// stays editable.
func ReferralLetter(p *consultation.Patient, cons *consultation.Consultation, to Recipient) string {
	name := "[Nom du patient]"
	if p != nil && p.Name != "" {
		name = p.Name
	}
	age := "[âge]"
	if p != nil && p.DateOfBirth != "" {
		if years, ok := ageInYears(p.DateOfBirth); ok {
			age = fmt.Sprintf("%d", years)
		}
	}
	motif := orPlaceholder(cons.Motif, "[motif de consultation]")
	antecedents := orPlaceholder(cons.Antecedents, "[Antécédents médicaux pertinents]")
	history := orPlaceholder(cons.Symptoms, "[Description détaillée des symptômes et évolution]")
	exam := orPlaceholder(cons.ClinicalExam, "[Résultats de l'examen physique]")

	treatment := "[Médicaments et posologies en cours]"
	if cons.Treatment != nil && len(cons.Treatment.Medications) > 0 {
		lines := make([]string, 0, len(cons.Treatment.Medications))
		for _, m := range cons.Treatment.Medications {
			lines = append(lines, fmt.Sprintf("- %s, %s %s pendant %s", m.Name, m.Dosage, m.Frequency, m.Duration))
		}
		treatment = strings.Join(lines, "\n")
	} else if cons.Ordonnance != "" {
		treatment = cons.Ordonnance
	}

	body := fmt.Sprintf(referralTemplate, name, age, motif, antecedents, history, exam, treatment)

	header := ""
	if to.Specialist != "" || to.Service != "" || to.Hospital != "" {
		parts := []string{}
		for _, s := range []string{to.Specialist, to.Service, to.Hospital} {
			if s != "" {
				parts = append(parts, s)
			}
		}
		header = strings.Join(parts, "\n") + "\n\n"
	}
	return header + body
}

const educationTemplate = `FICHE D'ÉDUCATION THÉRAPEUTIQUE DU PATIENT

VOTRE DIAGNOSTIC
%s

%s

CONSEILS POUR VOTRE SANTÉ
%s

QUAND CONSULTER EN URGENCE ?
Consultez immédiatement ou appelez le 15 si vous ressentez un ou plusieurs de ces symptômes :
%s

VOTRE SUIVI MÉDICAL
%s`

var defaultWarningSigns = []string{
	"Maux de tête intenses et persistants",
	"Troubles de la vision",
	"Douleurs thoraciques",
	"Essoufflement important",
	"Vertiges ou malaises",
}

// EducationSheet composes the patient education sheet from the selected
// diagnosis and treatment. Red flags from the structuring stage replace the
// generic warning list when present.
func EducationSheet(cons *consultation.Consultation) string {
	diagnosis := orPlaceholder(cons.SelectedDiagnosis, "[Diagnostic]")

	explanation := "Votre médecin vous a expliqué votre situation lors de la consultation."
	if cons.AIAnalysis != nil && cons.AIAnalysis.ClinicalSynthesis != "" {
		explanation = cons.AIAnalysis.ClinicalSynthesis
	}

	treatment := cons.Treatment
	if treatment == nil {
		treatment = DefaultTreatment()
	}
	advice := bulleted(treatment.Recommendations)

	warnings := defaultWarningSigns
	if cons.DrapeauxRouges != "" {
		warnings = splitLines(cons.DrapeauxRouges)
	}

	return fmt.Sprintf(educationTemplate, diagnosis, explanation, advice, bulleted(warnings), treatment.FollowUp)
}

// DefaultTreatment returns the standard symptomatic plan used when a
// consultation has no treatment yet.
func DefaultTreatment() *consultation.Treatment {
	return &consultation.Treatment{
		Medications: []consultation.Medication{
			{
				Name:         "Paracétamol 1000mg",
				Dosage:       "1 comprimé",
				Frequency:    "3 fois par jour",
				Duration:     "5 jours",
				Instructions: "À prendre au cours des repas",
			},
			{
				Name:         "Ibuprofène 400mg",
				Dosage:       "1 comprimé",
				Frequency:    "Si besoin",
				Duration:     "3 jours max",
				Instructions: "Maximum 3 prises par jour",
			},
		},
		Recommendations: []string{
			"Repos au lit pendant 2-3 jours",
			"Hydratation abondante (2L/jour minimum)",
			"Éviter les efforts physiques",
			"Consulter si aggravation des symptômes",
		},
		FollowUp: "Planifier un rendez-vous de suivi dans 7 jours pour évaluer l'efficacité du traitement.",
	}
}

// RenderOrdonnance formats a treatment as prescription text.
func RenderOrdonnance(t *consultation.Treatment) string {
	var b strings.Builder
	b.WriteString("ORDONNANCE\n")
	for i, m := range t.Medications {
		fmt.Fprintf(&b, "\n%d. %s\n   Posologie: %s\n   Fréquence: %s\n   Durée: %s\n", i+1, m.Name, m.Dosage, m.Frequency, m.Duration)
		if m.Instructions != "" {
			fmt.Fprintf(&b, "   Instructions: %s\n", m.Instructions)
		}
	}
	if len(t.Recommendations) > 0 {
		b.WriteString("\nRECOMMANDATIONS\n")
		b.WriteString(bulleted(t.Recommendations))
		b.WriteString("\n")
	}
	if t.FollowUp != "" {
		b.WriteString("\nSUIVI\n")
		b.WriteString(t.FollowUp)
		b.WriteString("\n")
	}
	return b.String()
}

// ageInYears parses the usual date layouts used for dates of birth and
// returns the age today.
func ageInYears(dob string) (int, bool) {
	var parsed time.Time
	var err error
	for _, layout := range []string{"2006-01-02", "02/01/2006"} {
		parsed, err = time.Parse(layout, dob)
		if err == nil {
			break
		}
	}
	if err != nil {
		return 0, false
	}
	now := time.Now()
	years := now.Year() - parsed.Year()
	if now.YearDay() < parsed.YearDay() {
		years--
	}
	if years < 0 {
		return 0, false
	}
	return years, true
}

func orPlaceholder(s, placeholder string) string {
	if strings.TrimSpace(s) == "" {
		return placeholder
	}
	return s
}

func bulleted(items []string) string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, "- "+it)
	}
	return strings.Join(lines, "\n")
}

func splitLines(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == ';' }) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
