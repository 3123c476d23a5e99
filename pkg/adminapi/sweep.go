package adminapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper runs the periodic admin housekeeping jobs spec.md §4.G calls the
// "admin sweep": forcing expiry on pending approvals whose expiresAt has
// passed, since expiry is otherwise only computed lazily when something
// happens to touch the approval.
type Sweeper struct {
	cron   *cron.Cron
	server *Server
	log    *slog.Logger
}

// NewSweeper builds a Sweeper over server's stores. approvalSweepSpec is a
// standard 5-field cron expression; an empty string defaults to every
// minute.
func NewSweeper(server *Server, approvalSweepSpec string, log *slog.Logger) (*Sweeper, error) {
	if log == nil {
		log = slog.Default()
	}
	if approvalSweepSpec == "" {
		approvalSweepSpec = "* * * * *"
	}

	s := &Sweeper{cron: cron.New(), server: server, log: log}
	_, err := s.cron.AddFunc(approvalSweepSpec, s.sweepExpiredApprovals)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the cron scheduler in the background. Stop via Stop.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the scheduler, waiting for any in-flight job to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweepExpiredApprovals() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	expired, err := s.server.approvals.ExpireDue(ctx, time.Now().UTC())
	if err != nil {
		s.log.Error("adminapi: approval expiry sweep failed", "error", err)
		return
	}
	if len(expired) > 0 {
		s.log.Info("adminapi: approval expiry sweep expired pending approvals", "count", len(expired))
	}
}
