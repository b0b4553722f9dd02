package login

import "strings"

// MaskIdentity keeps enough of an identity to tell accounts apart in a
// report: "jo***@example.com", "ad***" for non-email names.
func MaskIdentity(identity string) string {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "***"
	}
	local, domain, isEmail := strings.Cut(identity, "@")
	r := []rune(local)
	keep := 2
	if len(r) <= 2 {
		keep = 1
	}
	if len(r) < keep {
		keep = len(r)
	}
	masked := string(r[:keep]) + "***"
	if isEmail {
		return masked + "@" + domain
	}
	return masked
}
