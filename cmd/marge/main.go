// Command marge runs the merge-queue bot: it loads configuration, wires
// every core component together, and serves the webhook listener, the
// health check, and the Prometheus metrics endpoint, grounded on
// cmd/hook/main.go's options-then-wire-then-serve shape.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/polka-labs/marge/authz"
	"github.com/polka-labs/marge/burnin"
	"github.com/polka-labs/marge/companion"
	cfgpkg "github.com/polka-labs/marge/config"
	"github.com/polka-labs/marge/ghclient"
	"github.com/polka-labs/marge/hook"
	"github.com/polka-labs/marge/notify"
	"github.com/polka-labs/marge/policy"
	"github.com/polka-labs/marge/processinfo"
	"github.com/polka-labs/marge/queue"
	"github.com/polka-labs/marge/ready"
	"github.com/polka-labs/marge/report"
	"github.com/polka-labs/marge/store"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	log := logrus.WithField("component", "marge")

	cfg, err := cfgpkg.Load()
	if err != nil {
		log.WithError(err).Fatal("loading configuration")
	}

	ctx := context.Background()

	gh := ghclient.NewClient(ctx, cfg.GithubToken, log.WithField("client", "github"))
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("opening intent store")
	}
	defer st.Close()

	authzSvc := authz.NewService(gh, cfg.GithubOrganization)
	processClient := processinfo.NewClient(gh)
	policyEngine := policy.NewEngine(gh, processClient, policy.Config{
		MinReviewers:  cfg.MinReviewers,
		TeamLeadsSlug: cfg.TeamLeadsSlug,
		CoreDevsSlug:  cfg.CoreDevsSlug,
	}, log.WithField("component", "policy"))
	readyEval := ready.NewEvaluator(gh)

	companionPipeline := companion.NewPipeline(gh, companion.Config{
		WorkDir:            os.TempDir(),
		Token:              cfg.GithubToken,
		StagingRepoName:    cfg.CompanionStagingName,
		LockfilePin:        cfg.DependencyLockfilePin,
		LockfilePinStaging: cfg.DependencyLockfilePinStaging,
	}, log.WithField("component", "companion"))

	var notifier notifyClient = noopNotifier{}
	if cfg.MatrixHomeserver != "" {
		client, err := notify.Dial(ctx, cfg.MatrixHomeserver, cfg.MatrixUser, cfg.MatrixPassword)
		if err != nil {
			log.WithError(err).Warn("failed to dial chat homeserver; burn-in notifications disabled")
		} else {
			defer client.Close()
			notifier = client
		}
	}

	burninGH := gh
	if cfg.CIRequestToken != "" {
		burninGH = ghclient.NewClientWithToken(ctx, cfg.CIRequestToken, log.WithField("client", "ci-request"))
	}
	burninPipeline := burnin.NewPipeline(burninGH, notifier, burnin.Config{
		RequestOwner: cfg.CIRequestOwner,
		RequestRepo:  cfg.CIRequestRepo,
		RoomID:       cfg.BurninRoomID,
	})

	controller := queue.NewController(gh, authzSvc, policyEngine, readyEval, st, companionPipeline, burninPipeline,
		queue.Config{
			BaseRepoName:         cfg.BaseRepoName,
			BaseRepoStagingName:  cfg.BaseRepoStagingName,
			CompanionRepoName:    cfg.CompanionRepoName,
			CompanionStagingName: cfg.CompanionStagingName,
		}, log.WithField("component", "queue"))

	reporter := report.NewReporter(gh, st, log.WithField("component", "report"))

	server := &hook.Server{
		HMACSecret: []byte(cfg.WebhookSecret),
		Queue:      controller,
		Reporter:   reporter,
		Log:        log.WithField("component", "hook"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/webhook", server)

	// Ignore SIGTERM so in-flight webhook handling is not interrupted; the
	// process still exits on SIGKILL after the platform's grace period.
	signal.Ignore(syscall.SIGTERM)

	log.WithField("port", cfg.Port).Info("listening")
	log.Fatal(http.ListenAndServe(":"+strconv.Itoa(cfg.Port), mux))
}

// notifyClient narrows notify.Client to the single method burnin.Pipeline
// needs, so main can substitute a no-op when no homeserver is configured.
type notifyClient interface {
	Notify(ctx context.Context, roomID, message string) error
}

type noopNotifier struct{}

func (noopNotifier) Notify(ctx context.Context, roomID, message string) error { return nil }
