package login

import (
	"fmt"
)

// Status is the terminal verdict for an attempt or an account.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// ErrorCode classifies why an attempt or a run failed.
type ErrorCode string

const (
	CodeConfig            ErrorCode = "CONFIG_ERROR"
	CodeNavigationTimeout ErrorCode = "NAVIGATION_TIMEOUT"
	CodeElementTimeout    ErrorCode = "ELEMENT_TIMEOUT"
	CodeBotCheck          ErrorCode = "BOT_CHECK_DETECTED"
	CodeClassifiedFailure ErrorCode = "CLASSIFIED_FAILURE"
	CodeUncaughtFault     ErrorCode = "UNCAUGHT_FAULT"
)

// Retryable reports whether another attempt can change the result.
func (c ErrorCode) Retryable() bool {
	switch c {
	case CodeBotCheck, CodeConfig:
		return false
	default:
		return true
	}
}

// State is a step of the attempt state machine.
type State string

const (
	StateStart            State = "START"
	StateNavigated        State = "NAVIGATED"
	StateBotCheckClear    State = "BOTCHECK_CLEAR"
	StateBotCheckDetected State = "BOTCHECK_DETECTED"
	StateFormReady        State = "FORM_READY"
	StateSubmitted        State = "SUBMITTED"
	StateClassified       State = "CLASSIFIED"
	StateFaulted          State = "FAULTED"
)

// Credential is one account. String masks the identity and never prints
// the secret, so a Credential is safe to pass to a logger.
type Credential struct {
	Identity string
	Secret   string
}

func (c Credential) String() string { return MaskIdentity(c.Identity) }

func (c Credential) GoString() string {
	return fmt.Sprintf("login.Credential{Identity:%q}", MaskIdentity(c.Identity))
}

// AttemptContext identifies one attempt.
type AttemptContext struct {
	Credential   Credential
	AccountIndex int
	RetryIndex   int
}

// Label names the attempt in logs and browser sessions.
func (a AttemptContext) Label() string {
	return fmt.Sprintf("account-%d/retry-%d", a.AccountIndex, a.RetryIndex)
}

// Fault is a failure tagged with its code and, separately, whether a retry
// is worthwhile. The retry loop looks at nothing else.
type Fault struct {
	Code      ErrorCode
	Stage     State
	Message   string
	Retryable bool
	Err       error
}

// NewFault tags err with code; Retryable follows the code.
func NewFault(code ErrorCode, stage State, message string, err error) *Fault {
	if message == "" && err != nil {
		message = err.Error()
	}
	return &Fault{Code: code, Stage: stage, Message: message, Retryable: code.Retryable(), Err: err}
}

func (f *Fault) Error() string {
	if f.Stage != "" {
		return fmt.Sprintf("%s at %s: %s", f.Code, f.Stage, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

func (f *Fault) Unwrap() error { return f.Err }

// AttemptResult is what one pass through the state machine produced.
type AttemptResult struct {
	Status Status
	Reason string
	// Fault is set whenever Status is FAILURE.
	Fault *Fault
	// Final is the state the attempt ended in.
	Final State
}

// Retryable is false for successes and for non-retryable faults.
func (r AttemptResult) Retryable() bool {
	return r.Status == StatusFailure && r.Fault != nil && r.Fault.Retryable
}

func (r AttemptResult) code() ErrorCode {
	if r.Fault == nil {
		return ""
	}
	return r.Fault.Code
}

// Outcome is the per-account result returned by the retry policy.
type Outcome struct {
	Identity    string    `json:"identity"`
	Status      Status    `json:"status"`
	Reason      string    `json:"reason"`
	Code        ErrorCode `json:"code,omitempty"`
	RetriesUsed int       `json:"retries_used"`
}

func (o Outcome) Succeeded() bool { return o.Status == StatusSuccess }
