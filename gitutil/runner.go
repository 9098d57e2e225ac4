// Package gitutil shells out to git the way original_source/src/cmd.rs's
// run_cmd/run_cmd_with_output do, redacting any embedded access token from
// captured output before it is logged.
package gitutil

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Runner executes git (and other) commands in a working directory,
// redacting a set of secrets from anything it logs.
type Runner struct {
	Dir     string
	Secrets []string
	Log     *logrus.Entry
}

// New returns a Runner rooted at dir. secrets are redacted from any output
// this Runner logs (typically the bot's access token, embedded in clone
// URLs).
func New(dir string, log *logrus.Entry, secrets ...string) *Runner {
	return &Runner{Dir: dir, Secrets: secrets, Log: log}
}

func (r *Runner) redact(s string) string {
	for _, secret := range r.Secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, "***")
	}
	return s
}

// Run executes name with args in r.Dir, returning combined stdout/stderr.
// Failures are wrapped with the redacted output so they remain useful in
// logs and error messages without ever leaking the token.
func (r *Runner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	redacted := r.redact(out.String())
	if r.Log != nil {
		r.Log.Debugf("$ %s %s\n%s", name, r.redact(strings.Join(args, " ")), redacted)
	}
	if err != nil {
		return redacted, fmt.Errorf("running %s %s: %w: %s", name, strings.Join(redactArgs(args, r), " "), err, redacted)
	}
	return strings.TrimSpace(redacted), nil
}

// RunQuiet is like Run but never logs, on success or failure, and returns
// the error without wrapping it, for side-effecting commands whose failure
// the caller may ignore (original_source's are_errors_silenced flag).
func (r *Runner) RunQuiet(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return strings.TrimSpace(r.redact(out.String())), err
}

func redactArgs(args []string, r *Runner) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.redact(a)
	}
	return out
}
