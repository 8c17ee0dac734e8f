// Package telemetry reports unexpected daemon failures to Sentry.
//
// Kandra's operationally-interesting signal is almost entirely covered by
// typed events on the Event Bus/Log (agent_thought, stuck_warning,
// execution_error, ...); telemetry exists only for the failures that never
// make it that far — panics on the daemon's main goroutine and errors the
// command tree returns to main. The orchestrator does not call this package.
//
// Workspace paths (internal/workspace) are rooted under the operator's home
// directory, and job source_repo_url/target_stack values can embed tokens or
// emails in ways a stack trace or breadcrumb would happily repeat verbatim.
// Every string Sentry would otherwise see is scrubbed first.
package telemetry

import (
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

const flushTimeout = 2 * time.Second

var (
	homePathPattern = regexp.MustCompile(`(?i)(/home/|/Users/|C:\\Users\\)([^/\\:]+)`)
	apiKeyPattern   = regexp.MustCompile(`(?i)(sk-ant-api\d+-|sk-|api[_-]?key[=:]\s*)([A-Za-z0-9_-]{10,})`)
	emailPattern    = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
)

// Init initializes the Sentry SDK with the given daemon version.
// If SENTRY_DSN is not set, Sentry is disabled (no-op).
// Returns a cleanup function that should be deferred.
func Init(version string) func() {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		return func() {}
	}

	env := os.Getenv("SENTRY_ENVIRONMENT")
	if env == "" {
		env = "production"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          "kandrad@" + version,
		Environment:      env,
		AttachStacktrace: true,
		SampleRate:       1.0,
		IgnoreErrors: []string{
			"context canceled",
			"context deadline exceeded",
			"signal: interrupt",
			"signal: terminated",
		},
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			if hint != nil && hint.OriginalException != nil {
				errMsg := hint.OriginalException.Error()
				if strings.Contains(errMsg, "interrupt") || strings.Contains(errMsg, "context canceled") {
					return nil
				}
			}
			scrubEvent(event)
			return event
		},
		BeforeBreadcrumb: func(breadcrumb *sentry.Breadcrumb, hint *sentry.BreadcrumbHint) *sentry.Breadcrumb {
			breadcrumb.Message = scrubPII(breadcrumb.Message)
			return breadcrumb
		},
	})
	if err != nil {
		return func() {}
	}

	return func() {
		sentry.Flush(flushTimeout)
	}
}

// CaptureError reports an error to Sentry if initialized.
// Safe to call even if Sentry is not configured.
func CaptureError(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
}

// RecoverAndPanic recovers from a panic, reports it to Sentry,
// then re-panics. Use with defer at top-level entry points.
func RecoverAndPanic() {
	if r := recover(); r != nil {
		sentry.CurrentHub().Recover(r)
		sentry.Flush(flushTimeout)
		panic(r)
	}
}

// SetTag sets a tag for filtering errors, e.g. the job id of the run in
// flight when a panic occurred. Values are scrubbed of PII before being set.
func SetTag(key, value string) {
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag(key, scrubPII(value))
	})
}

// scrubPII removes home-directory usernames, API keys and email addresses
// from a string before it reaches Sentry.
func scrubPII(s string) string {
	s = homePathPattern.ReplaceAllString(s, "${1}[user]")
	s = apiKeyPattern.ReplaceAllString(s, "${1}[REDACTED]")
	s = emailPattern.ReplaceAllString(s, "[email]")
	return s
}

// scrubEvent removes PII from every part of a Sentry event that might carry
// a workspace path, a job's source_repo_url, or an inlined API key.
func scrubEvent(event *sentry.Event) {
	event.Message = scrubPII(event.Message)

	for i := range event.Exception {
		event.Exception[i].Value = scrubPII(event.Exception[i].Value)

		if event.Exception[i].Stacktrace != nil {
			for j := range event.Exception[i].Stacktrace.Frames {
				frame := &event.Exception[i].Stacktrace.Frames[j]
				frame.AbsPath = scrubPII(frame.AbsPath)
				frame.Filename = scrubPII(frame.Filename)
			}
		}
	}

	for i := range event.Breadcrumbs {
		event.Breadcrumbs[i].Message = scrubPII(event.Breadcrumbs[i].Message)
	}

	for key, value := range event.Extra {
		if str, ok := value.(string); ok {
			event.Extra[key] = scrubPII(str)
		}
	}

	for key, value := range event.Tags {
		event.Tags[key] = scrubPII(value)
	}
}
