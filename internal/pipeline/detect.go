package pipeline

import (
	"sort"
	"strings"
)

// specialtyKeywords maps practice specialties to indicator terms. Detection
// picks the specialty with the highest keyword hit count; ties and zero hits
// fall back to "general".
var specialtyKeywords = map[string][]string{
	"dental": {
		"dental", "dentist", "teeth", "tooth", "orthodont", "implant",
		"crown", "filling", "whitening", "oral",
	},
	"dermatology": {
		"dermatolog", "skin", "acne", "eczema", "psoriasis", "botox",
		"laser", "cosmetic", "mole",
	},
	"cardiology": {
		"cardiolog", "heart", "cardiac", "vascular", "blood pressure",
		"cholesterol", "ecg", "arrhythmia",
	},
	"physiotherapy": {
		"physiotherap", "physical therapy", "rehabilitation", "sports injury",
		"mobility", "musculoskeletal", "massage",
	},
	"ophthalmology": {
		"ophthalmolog", "eye", "vision", "cataract", "glaucoma", "retina",
		"optometr", "lasik",
	},
	"pediatrics": {
		"pediatric", "paediatric", "children", "infant", "vaccination",
		"newborn", "adolescent",
	},
}

const specialtyGeneral = "general"

// detectSpecialty returns the explicit hint when present, otherwise scores
// the text against the keyword table.
func detectSpecialty(text, hint string) string {
	if hint != "" {
		return strings.ToLower(strings.TrimSpace(hint))
	}

	// Iterate in sorted order so a score tie resolves the same way every run.
	specialties := make([]string, 0, len(specialtyKeywords))
	for s := range specialtyKeywords {
		specialties = append(specialties, s)
	}
	sort.Strings(specialties)

	lower := strings.ToLower(text)
	best, bestScore := specialtyGeneral, 0
	for _, specialty := range specialties {
		score := 0
		for _, kw := range specialtyKeywords[specialty] {
			score += strings.Count(lower, kw)
		}
		if score > bestScore {
			best, bestScore = specialty, score
		}
	}
	return best
}
