// Package burnin implements the "bot burnin" side-effect pipeline: a
// fenced TOML block posted as a PR comment becomes a CI burn-in request
// file in an external request repository, grounded on
// original_source/src/webhook.rs's handle_burnin_request.
package burnin

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

type githubClient interface {
	CreateFile(ctx context.Context, owner, repo, path, message string, content []byte, branch string) error
	CreateComment(ctx context.Context, owner, repo string, number int, body string) error
}

type notifier interface {
	Notify(ctx context.Context, roomID, message string) error
}

// Config names the repository that receives burn-in request files and the
// chat room that gets notified.
type Config struct {
	RequestOwner string
	RequestRepo  string
	RoomID       string
}

// Pipeline validates and files a burn-in request.
type Pipeline struct {
	gh     githubClient
	notify notifier
	cfg    Config
}

func NewPipeline(gh githubClient, notify notifier, cfg Config) *Pipeline {
	return &Pipeline{gh: gh, notify: notify, cfg: cfg}
}

// Run validates tomlBlock, files it as a request, comments acknowledgment
// on (owner, repo, number), and notifies the configured chat room.
func (p *Pipeline) Run(ctx context.Context, owner, repo string, number int, tomlBlock string) error {
	var parsed map[string]interface{}
	if _, err := toml.Decode(tomlBlock, &parsed); err != nil {
		return fmt.Errorf("parsing burnin request as TOML: %w", err)
	}

	path := fileName(owner, repo, number)
	message := fmt.Sprintf("Burn-in request for %s/%s#%d", owner, repo, number)
	if err := p.gh.CreateFile(ctx, p.cfg.RequestOwner, p.cfg.RequestRepo, path, message, []byte(tomlBlock), ""); err != nil {
		return fmt.Errorf("filing burnin request: %w", err)
	}

	ack := fmt.Sprintf("Burn-in request filed as `%s/%s/%s`.", p.cfg.RequestOwner, p.cfg.RequestRepo, path)
	if err := p.gh.CreateComment(ctx, owner, repo, number, ack); err != nil {
		return fmt.Errorf("acknowledging burnin request: %w", err)
	}

	if p.notify != nil && p.cfg.RoomID != "" {
		room := fmt.Sprintf("Burn-in requested for %s/%s#%d: %s", owner, repo, number, path)
		if err := p.notify.Notify(ctx, p.cfg.RoomID, room); err != nil {
			return fmt.Errorf("notifying burnin room: %w", err)
		}
	}
	return nil
}

// fileName computes a deterministic request file name, one component per
// piece of context that identifies the request uniquely.
func fileName(owner, repo string, number int) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s-%s-%d-%d.toml", owner, repo, number, time.Now().UTC().Unix())
	return buf.String()
}
