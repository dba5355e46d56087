package mail

import (
	"fmt"
	"strings"
	"text/template"
)

// TemplateAuditDiscrepancy is the notification sent to a POI's contact when
// an audit found discrepancies that need review.
const TemplateAuditDiscrepancy = "audit-discrepancy"

type templateSet struct {
	subject *template.Template
	body    *template.Template
}

// registry maps template id -> locale -> rendered pair. Locales not present
// here fall back to the configured default locale at send time.
var registry = map[string]map[string]templateSet{
	TemplateAuditDiscrepancy: {
		"de": {
			subject: mustParse("audit-discrepancy.de.subject",
				`Datenprüfung für {{.poi_name}}: {{len .discrepancies}} Abweichung(en) gefunden`),
			body: mustParse("audit-discrepancy.de.body",
				`Guten Tag,

die automatische Datenprüfung für "{{.poi_name}}" hat einen Gesamtwert von
{{printf "%.0f" .overall_score}}/100 ergeben. Folgende Felder weichen zwischen
Stammdaten, Website und Kartendienst voneinander ab:
{{range .discrepancies}}
- {{.field}} ({{.severity}}){{if .recommendation}}: {{.recommendation}}{{end}}{{end}}

Bitte prüfen Sie die genannten Felder und aktualisieren Sie die Stammdaten
bei Bedarf.

Diese Nachricht wurde automatisch erzeugt.`),
		},
		"en": {
			subject: mustParse("audit-discrepancy.en.subject",
				`Data audit for {{.poi_name}}: {{len .discrepancies}} discrepancy(ies) found`),
			body: mustParse("audit-discrepancy.en.body",
				`Hello,

the automated data audit for "{{.poi_name}}" scored
{{printf "%.0f" .overall_score}}/100 overall. The following fields disagree
between the master record, the website, and the maps provider:
{{range .discrepancies}}
- {{.field}} ({{.severity}}){{if .recommendation}}: {{.recommendation}}{{end}}{{end}}

Please review the listed fields and update the master record where needed.

This message was generated automatically.`),
		},
	},
}

func mustParse(name, text string) *template.Template {
	return template.Must(template.New(name).Option("missingkey=zero").Parse(text))
}

// lookupTemplate resolves a template id and locale, falling back to the
// default locale when the requested one has no translation.
func lookupTemplate(templateID, locale, defaultLocale string) (templateSet, error) {
	locales, ok := registry[templateID]
	if !ok {
		return templateSet{}, fmt.Errorf("unknown mail template %q", templateID)
	}
	if set, ok := locales[normalizeLocale(locale)]; ok {
		return set, nil
	}
	if set, ok := locales[normalizeLocale(defaultLocale)]; ok {
		return set, nil
	}
	return templateSet{}, fmt.Errorf(
		"mail template %q has no translation for %q or default %q",
		templateID, locale, defaultLocale,
	)
}

func normalizeLocale(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	// "de-DE" and "de_DE" select the "de" template.
	for _, sep := range []string{"-", "_"} {
		if idx := strings.Index(locale, sep); idx > 0 {
			return locale[:idx]
		}
	}
	return locale
}
