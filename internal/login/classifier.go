package login

import (
	"fmt"
	"regexp"
	"strings"
)

// PageSnapshot is everything the classifier is allowed to look at.
type PageSnapshot struct {
	URL   string
	Title string
	Text  string
	// ErrorTexts are the texts of elements matching ErrorSelectors, in
	// selector order.
	ErrorTexts []string
}

// Rule is one (pattern, verdict) pair. Patterns are case-insensitive.
type Rule struct {
	Pattern *regexp.Regexp
	Verdict Status
}

func rule(expr string, verdict Status) Rule {
	return Rule{Pattern: regexp.MustCompile(`(?i)` + expr), Verdict: verdict}
}

// RuleSet holds the ordered rule lists. Classify walks them first-match-wins.
type RuleSet struct {
	LoginPath     *regexp.Regexp
	Success       []Rule
	Errors        []Rule
	GenericErrors []Rule
}

// DefaultSuccessRules recognise a signed-in page.
var DefaultSuccessRules = []Rule{
	rule(`\bdashboard\b`, StatusSuccess),
	rule(`\blog ?out\b`, StatusSuccess),
	rule(`\bsign ?out\b`, StatusSuccess),
	rule(`\babmelden\b`, StatusSuccess),
	rule(`\bausloggen\b`, StatusSuccess),
	rule(`\bdéconnexion\b`, StatusSuccess),
	rule(`\bcerrar sesión\b`, StatusSuccess),
	rule(`\besci\b`, StatusSuccess),
	rule(`\bwelcome\b`, StatusSuccess),
	rule(`\bwillkommen\b`, StatusSuccess),
	rule(`\bbienvenue\b`, StatusSuccess),
	rule(`\bbienvenid[oa]\b`, StatusSuccess),
	rule(`\bbenvenut[oa]\b`, StatusSuccess),
	rule(`\bmy account\b`, StatusSuccess),
	rule(`\bmein konto\b`, StatusSuccess),
	rule(`\bmon compte\b`, StatusSuccess),
	rule(`\bmi cuenta\b`, StatusSuccess),
	rule(`\bmy profile\b`, StatusSuccess),
	rule(`\bmein profil\b`, StatusSuccess),
	rule(`\bmon profil\b`, StatusSuccess),
}

// DefaultErrorRules capture an explicit failure message. The matched text,
// as it appears on the page, becomes the reason.
var DefaultErrorRules = []Rule{
	rule(`invalid (?:credentials|password|login|e-?mail(?: (?:address )?or password)?|username(?: or password)?)`, StatusFailure),
	rule(`incorrect (?:password|credentials|e-?mail(?: or password)?|username(?: or password)?)`, StatusFailure),
	rule(`wrong (?:password|credentials|e-?mail(?: or password)?|username(?: or password)?)`, StatusFailure),
	rule(`(?:user|account|e-?mail) not found`, StatusFailure),
	rule(`authentication failed`, StatusFailure),
	rule(`login failed`, StatusFailure),
	rule(`too many (?:failed )?(?:login )?attempts`, StatusFailure),
	rule(`account (?:is |has been )?(?:locked|disabled|suspended)`, StatusFailure),
	rule(`ungültige (?:anmeldedaten|zugangsdaten|e-mail(?:-adresse)?|passwort)`, StatusFailure),
	rule(`falsches passwort`, StatusFailure),
	rule(`(?:benutzername|e-mail) oder passwort (?:ist )?falsch`, StatusFailure),
	rule(`anmeldung fehlgeschlagen`, StatusFailure),
	rule(`identifiants (?:invalides|incorrects)`, StatusFailure),
	rule(`mot de passe incorrect`, StatusFailure),
	rule(`credenciales (?:inválidas|incorrectas)`, StatusFailure),
	rule(`contraseña incorrecta`, StatusFailure),
	rule(`credenziali non valide`, StatusFailure),
}

// DefaultGenericErrorRules are weak markers consulted last, on the title and
// then the body.
var DefaultGenericErrorRules = []Rule{
	rule(`\berror\b`, StatusFailure),
	rule(`\bfehler\b`, StatusFailure),
	rule(`\berreur\b`, StatusFailure),
	rule(`\bfehlgeschlagen\b`, StatusFailure),
	rule(`\bfailed\b`, StatusFailure),
}

// ErrorSelectors are the usual error-styling hooks.
var ErrorSelectors = []string{
	"[role='alert']",
	".alert-danger",
	".alert-error",
	".error-message",
	".form-error",
	".invalid-feedback",
	".field-error",
	".text-danger",
	".notification.is-danger",
	".toast-error",
	".error",
}

// ReasonUnknown is reported when nothing on the page explains the failure.
const ReasonUnknown = "failure, cause unknown"

// NewRuleSet compiles loginPath and attaches the default rule lists.
func NewRuleSet(loginPath string) (RuleSet, error) {
	re, err := regexp.Compile(loginPath)
	if err != nil {
		return RuleSet{}, fmt.Errorf("invalid login path pattern %q: %w", loginPath, err)
	}
	return RuleSet{
		LoginPath:     re,
		Success:       DefaultSuccessRules,
		Errors:        DefaultErrorRules,
		GenericErrors: DefaultGenericErrorRules,
	}, nil
}

// Verdict is the classifier output. Reason is never empty.
type Verdict struct {
	Status Status
	Reason string
}

// Classify decides SUCCESS or FAILURE for a settled page. Success evidence
// is always checked before failure evidence.
func Classify(snap PageSnapshot, rules RuleSet) Verdict {
	if rules.LoginPath != nil && !rules.LoginPath.MatchString(snap.URL) {
		return Verdict{Status: StatusSuccess, Reason: "left the login page"}
	}
	if m, ok := firstMatch(rules.Success, snap.Text); ok {
		return Verdict{Status: StatusSuccess, Reason: fmt.Sprintf("success marker %q", m)}
	}

	if m, ok := firstMatch(rules.Errors, snap.Text); ok {
		return Verdict{Status: StatusFailure, Reason: m}
	}
	for _, t := range snap.ErrorTexts {
		if t = strings.TrimSpace(t); nonTrivial(t) {
			return Verdict{Status: StatusFailure, Reason: collapse(t)}
		}
	}

	if m, ok := firstMatch(rules.GenericErrors, snap.Title); ok {
		return Verdict{Status: StatusFailure, Reason: fmt.Sprintf("page title reports %q", m)}
	}
	if m, ok := firstMatch(rules.GenericErrors, snap.Text); ok {
		return Verdict{Status: StatusFailure, Reason: fmt.Sprintf("page reports %q", m)}
	}
	return Verdict{Status: StatusFailure, Reason: ReasonUnknown}
}

func firstMatch(rules []Rule, text string) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, r := range rules {
		if m := strings.TrimSpace(r.Pattern.FindString(text)); nonTrivial(m) {
			return m, true
		}
	}
	return "", false
}

func nonTrivial(s string) bool { return len([]rune(s)) > 1 }

// collapse folds whitespace and caps the length of element text.
func collapse(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 200 {
		s = string(r[:200]) + "…"
	}
	return s
}
