package profile

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	clilogging "github.com/dobrovols/ctxctl/internal/cli/logging"
	"github.com/dobrovols/ctxctl/pkg/telemetry"
)

var (
	invocationArgs    = func() []string { return os.Args[1:] }
	invocationEnviron = os.Environ
)

func newWorkflowLogger(w io.Writer, profileName string) telemetry.StructuredLogger {
	logger, err := telemetry.NewLogger(w, newWorkflowID())
	if err != nil {
		return nil
	}
	return &profileLogger{logger: logger, profile: profileName}
}

// profileLogger stamps every entry with the active profile name.
type profileLogger struct {
	logger  *telemetry.Logger
	profile string
}

func (p *profileLogger) Emit(entry telemetry.Entry) error {
	if entry.Profile == "" {
		entry.Profile = p.profile
	}
	return p.logger.Emit(entry)
}

func newWorkflowID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "workflow-unknown"
	}
	return hex.EncodeToString(buf)
}

func logWorkflowStart(logger telemetry.StructuredLogger, action string, metadata map[string]string) {
	logWorkflowEntry(logger, fmt.Sprintf("%s workflow started", action), telemetry.SeverityInfo, startMetadata(metadata), nil)
}

// startMetadata records the sanitized invocation on the workflow-start entry:
// the CLI arguments plus every CTXCTL_*/XDG_* environment variable, with
// sensitive values redacted.
func startMetadata(base map[string]string) map[string]string {
	out := make(map[string]string, len(base)+2)
	for key, value := range base {
		out[key] = value
	}

	if args := invocationArgs(); len(args) > 0 {
		out["args"] = clilogging.SanitizeArgs(args)
	}

	env := map[string]string{}
	for _, pair := range invocationEnviron() {
		eq := strings.Index(pair, "=")
		if eq <= 0 {
			continue
		}
		key := pair[:eq]
		if strings.HasPrefix(key, "CTXCTL_") || strings.HasPrefix(key, "XDG_") {
			env[key] = pair[eq+1:]
		}
	}
	for key, value := range clilogging.SanitizeEnv(env) {
		out["env:"+key] = value
	}
	return out
}

func logWorkflowSuccess(logger telemetry.StructuredLogger, action string, metadata map[string]string) {
	logWorkflowEntry(logger, fmt.Sprintf("%s workflow completed", action), telemetry.SeverityInfo, metadata, nil)
}

func logWorkflowFailure(logger telemetry.StructuredLogger, action string, metadata map[string]string, err error) {
	logWorkflowEntry(logger, fmt.Sprintf("%s workflow failed", action), telemetry.SeverityError, metadata, err)
}

func logWorkflowEntry(logger telemetry.StructuredLogger, message string, severity telemetry.Severity, metadata map[string]string, err error) {
	if logger == nil {
		return
	}
	_ = logger.Emit(telemetry.Entry{
		Category: telemetry.CategoryWorkflow,
		Message:  message,
		Severity: severity,
		Metadata: clilogging.SanitizeMetadata(metadata),
		Error:    err,
	})
}
