// Package hook implements the webhook HTTP listener, grounded on
// hook/server.go's ServeHTTP/demuxEvent structure but
// narrowed to the four payload variants the queue controller consumes,
// and delegating signature verification to go-github instead of a
// hand-rolled HMAC comparison.
package hook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/go-github/v57/github"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

type queueController interface {
	HandleComment(ctx context.Context, owner, repo string, number int, requester, body string) error
	HandleStatusOrCheck(ctx context.Context, commit string) error
	HandleLabel(ctx context.Context, owner, repo string, number int, labelName, addedBy string) error
}

type reporter interface {
	Report(ctx context.Context, err error)
}

var webhookCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "marge_webhook_events_total",
	Help: "Count of webhook events received, by GitHub event type.",
}, []string{"event_type"})

// Server validates and demultiplexes incoming GitHub webhooks. It holds
// no mutable state beyond its dependencies; the request serialization
// invariant lives in queue.Controller.
type Server struct {
	HMACSecret []byte
	Queue      queueController
	Reporter   reporter
	Log        *logrus.Entry
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	if r.Method == http.MethodGet {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "405 Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	if eventType == "" {
		http.Error(w, "400 Bad Request: Missing X-GitHub-Event Header", http.StatusBadRequest)
		return
	}
	sig := r.Header.Get("X-Hub-Signature")

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "500 Internal Server Error: Failed to read request body", http.StatusInternalServerError)
		return
	}
	// A non-matching signature does not raise; it is acknowledged like any
	// other event and silently dropped.
	if err := github.ValidateSignature(sig, payload, s.HMACSecret); err != nil {
		s.Log.WithError(err).Warn("rejected webhook with invalid signature")
		w.WriteHeader(http.StatusOK)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Event received."))

	webhookCounter.WithLabelValues(eventType).Inc()

	l := s.Log.WithField("event-type", eventType).WithField("event-GUID", r.Header.Get("X-GitHub-Delivery"))
	go s.demux(l, eventType, payload)
}

// demux parses payload for the four event types the queue controller
// cares about and dispatches to it, funneling any resulting error through
// the reporter. Every other event type is ignored, as the
// original `issues`/`pull_request_review`/`push`
// subscriptions a general-purpose bot framework offers have no
// corresponding command in this bot's command grammar.
func (s *Server) demux(l *logrus.Entry, eventType string, payload []byte) {
	ctx := context.Background()

	switch eventType {
	case "issue_comment":
		var ev github.IssueCommentEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			l.WithError(err).Error("failed to unmarshal issue_comment payload")
			return
		}
		if ev.GetAction() != "created" || !ev.GetIssue().IsPullRequest() {
			return
		}
		owner := ev.GetRepo().GetOwner().GetLogin()
		repo := ev.GetRepo().GetName()
		number := ev.GetIssue().GetNumber()
		requester := ev.GetSender().GetLogin()
		body := ev.GetComment().GetBody()
		err := s.Queue.HandleComment(ctx, owner, repo, number, requester, body)
		s.Reporter.Report(ctx, err)

	case "status":
		var ev github.StatusEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			l.WithError(err).Error("failed to unmarshal status payload")
			return
		}
		err := s.Queue.HandleStatusOrCheck(ctx, ev.GetSHA())
		s.Reporter.Report(ctx, err)

	case "check_run":
		var ev github.CheckRunEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			l.WithError(err).Error("failed to unmarshal check_run payload")
			return
		}
		if ev.GetAction() != "completed" {
			return
		}
		err := s.Queue.HandleStatusOrCheck(ctx, ev.GetCheckRun().GetHeadSHA())
		s.Reporter.Report(ctx, err)

	case "pull_request":
		var ev github.PullRequestEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			l.WithError(err).Error("failed to unmarshal pull_request payload")
			return
		}
		if ev.GetAction() != "labeled" {
			return
		}
		owner := ev.GetRepo().GetOwner().GetLogin()
		repo := ev.GetRepo().GetName()
		number := ev.GetNumber()
		labelName := ev.GetLabel().GetName()
		addedBy := ev.GetSender().GetLogin()
		err := s.Queue.HandleLabel(ctx, owner, repo, number, labelName, addedBy)
		s.Reporter.Report(ctx, err)
	}
}
