package login

import "strings"

// BotCheckPatterns are matched case-insensitively against visible page text.
// They are challenge phrases, not bare vendor names: a login page that only
// mentions being protected by reCAPTCHA is not a challenge.
var BotCheckPatterns = []string{
	"verify you are human",
	"verifying you are human",
	"confirm you are human",
	"are you a robot",
	"i'm not a robot",
	"i am not a robot",
	"checking your browser",
	"checking if the site connection is secure",
	"enable javascript and cookies to continue",
	"press & hold",
	"please complete the security check",
	"attention required! | cloudflare",
	"performance & security by cloudflare",
	"ddos protection by cloudflare",
	"cloudflare ray id",
	"complete the recaptcha",
	"solve the recaptcha",
	"complete the hcaptcha",
	"solve the hcaptcha",
	"please complete the captcha",
	"datadome",
	"perimeterx",
	"human verification",
	"bestätigen sie, dass sie ein mensch sind",
	"ich bin kein roboter",
	"überprüfung, ob sie ein mensch sind",
	"vérifiez que vous êtes humain",
	"je ne suis pas un robot",
	"no soy un robot",
	"verifica che tu sia un essere umano",
}

// DetectBotCheck scans text for the first known challenge signature.
func DetectBotCheck(text string) (pattern string, found bool) {
	if text == "" {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, p := range BotCheckPatterns {
		if strings.Contains(lower, p) {
			return p, true
		}
	}
	return "", false
}
