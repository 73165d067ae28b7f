// Command simulate replays sent outreach emails through the reply pipeline
// with model-generated buyer replies.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/suPer8Hu/outreach-agent/internal/ai"
	"github.com/suPer8Hu/outreach-agent/internal/app"
	"github.com/suPer8Hu/outreach-agent/internal/config"
	"github.com/suPer8Hu/outreach-agent/internal/lead"
	"github.com/suPer8Hu/outreach-agent/internal/logging"
	"github.com/suPer8Hu/outreach-agent/internal/outbound"
	"github.com/suPer8Hu/outreach-agent/internal/reply"
	"github.com/suPer8Hu/outreach-agent/internal/simulator"
)

func main() {
	emailsDir := flag.String("emails", "data/emails", "directory of <lead_id>.txt outreach emails")
	repliesDir := flag.String("replies", "data/replies", "directory to write simulated replies to")
	leadsFile := flag.String("leads", "", "optional parsed leads JSON; follow-ups are sent to contact emails")
	maxLeads := flag.Int("max", 6, "maximum number of leads to simulate")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *emailsDir, *repliesDir, *leadsFile, *maxLeads); err != nil {
		log.Error("simulation failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger, emailsDir, repliesDir, leadsFile string, maxLeads int) error {
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	// buyer replies want some variety, unlike the classifier
	simReg := ai.NewDefaultRegistry(ai.Settings{
		OllamaBaseURL:     cfg.OllamaBaseURL,
		OllamaModel:       cfg.OllamaModel,
		OpenRouterBaseURL: cfg.OpenRouterBaseURL,
		OpenRouterAPIKey:  cfg.OpenRouterAPIKey,
		OpenRouterModel:   cfg.OpenRouterModel,
		OpenAIBaseURL:     cfg.OpenAIBaseURL,
		OpenAIAPIKey:      cfg.OpenAIAPIKey,
		OpenAIModel:       cfg.OpenAIModel,
		Sampling:          ai.Sampling{Temperature: ai.Temperature(0.8), MaxTokens: 200},
	})
	simProvider, err := simReg.Get(ctx, cfg.AIProvider, "")
	if err != nil {
		return err
	}
	sim := simulator.New(simProvider)

	var leads map[string]lead.Lead
	if leadsFile != "" {
		ls, err := lead.LoadFile(leadsFile)
		if err != nil {
			return err
		}
		leads = lead.Index(ls)
	}

	emails, err := loadSentEmails(emailsDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(repliesDir, 0o755); err != nil {
		return fmt.Errorf("create replies dir: %w", err)
	}

	ids := make([]string, 0, len(emails))
	for id := range emails {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	processed := 0
	for _, id := range ids {
		if processed >= maxLeads {
			log.Info("lead limit reached", "max", maxLeads)
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		processed++
		simulateLead(ctx, log, a, sim, leads, repliesDir, id, emails[id])
	}
	return nil
}

func simulateLead(ctx context.Context, log *slog.Logger, a *app.App, sim *simulator.Simulator, leads map[string]lead.Lead, repliesDir, id, sent string) {
	log = log.With("lead_id", id)

	if err := a.Controller.RecordOutreach(ctx, id, sent); err != nil {
		if errors.Is(err, reply.ErrLeadManual) {
			log.Info("lead handled manually, skipped")
			return
		}
		log.Error("record outreach", "err", err)
		return
	}

	text, tone, err := sim.Reply(ctx, sent)
	if err != nil {
		log.Warn("skipped, simulation failed", "err", err)
		return
	}
	log.Info("simulated reply", "tone", tone, "reply", text)
	if err := os.WriteFile(filepath.Join(repliesDir, id+".txt"), []byte(text), 0o644); err != nil {
		log.Error("save reply", "err", err)
	}

	out, err := a.Controller.HandleReply(ctx, id, text)
	if err != nil {
		log.Error("handle reply", "err", err)
		return
	}
	if !out.HasFollowUp() {
		log.Info("handed off to a human", "reason", out.Decision.Reason, "intent", out.Decision.Intent)
		return
	}
	log.Info("follow-up drafted", "follow_up", out.FollowUp)

	l, found := leads[id]
	if !found || l.ContactEmail == "" {
		return
	}
	if err := a.Dispatcher.Send(ctx, outbound.Email{
		To:      l.ContactEmail,
		Subject: lead.ReplySubject(id),
		Body:    out.FollowUp,
	}); err != nil {
		log.Error("send follow-up", "err", err)
	}
}

func loadSentEmails(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read emails dir: %w", err)
	}
	out := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out[strings.TrimSuffix(e.Name(), ".txt")] = string(b)
	}
	return out, nil
}
