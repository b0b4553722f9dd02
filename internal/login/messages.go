package login

import (
	"fmt"
	"strings"
)

// failureMessage is the notifier text for an attempt that did not succeed.
func failureMessage(actx AttemptContext, f *Fault, detail string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "❌ Login failed for %s\n", MaskIdentity(actx.Credential.Identity))
	fmt.Fprintf(&b, "Account #%d, attempt %d\n", actx.AccountIndex+1, actx.RetryIndex+1)
	fmt.Fprintf(&b, "Stage: %s\n", f.Stage)
	fmt.Fprintf(&b, "Code: %s\n", f.Code)
	fmt.Fprintf(&b, "Reason: %s", f.Message)
	if detail != "" {
		fmt.Fprintf(&b, " (%s)", detail)
	}
	if !f.Retryable {
		b.WriteString("\nNo further retries for this account.")
	}
	return b.String()
}

// InitFailureMessage reports a run that stopped before any account was tried.
func InitFailureMessage(err error) string {
	return "⚠️ Auto-login run aborted during initialization\n" + err.Error()
}
