// Copyright 2026 The Shiplog Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package domain

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shiplog/shiplog/internal/observability/logger"
	"github.com/shiplog/shiplog/internal/tenant"
)

const pollBatchSize = 100

// Poller periodically re-verifies tenants whose custom domain is still
// pending. A tenant leaves the poll set the moment its domain verifies or
// is removed. Start and Stop are idempotent; Stop cancels the in-flight
// pass, and the manager discards any check result that lands after
// cancellation.
type Poller struct {
	manager  *Manager
	repo     tenant.Repository
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a poller running Verify on every pending domain each
// interval (30s when zero).
func NewPoller(manager *Manager, repo tenant.Repository, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{
		manager:  manager,
		repo:     repo,
		interval: interval,
	}
}

// Start launches the polling loop. Calling Start on a running poller is a
// no-op, so repeated wiring cannot double-schedule checks.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(ctx, p.done)
}

// Stop cancels the loop and waits for it to exit. Safe to call multiple
// times and before Start.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// First pass immediately; a freshly attached domain should not wait a
	// full interval for its first re-check.
	p.pass(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pass(ctx)
		}
	}
}

func (p *Poller) pass(ctx context.Context) {
	tenants, err := p.repo.ListPendingDomains(ctx, pollBatchSize)
	if err != nil {
		if ctx.Err() == nil {
			slog.ErrorContext(ctx, "failed to list pending domains",
				logger.Component("domain_poller"), logger.Error(err))
		}
		return
	}

	for _, t := range tenants {
		if ctx.Err() != nil {
			return
		}
		result, err := p.manager.Verify(ctx, t.ID)
		switch {
		case errors.Is(err, ErrNoCustomDomain):
			// Removed between listing and checking; nothing to do.
		case err != nil:
			if ctx.Err() == nil {
				slog.WarnContext(ctx, "domain re-check failed",
					logger.Component("domain_poller"), logger.TenantID(t.ID), logger.Error(err))
			}
		case result.Verified:
			slog.InfoContext(ctx, "pending domain verified",
				logger.Component("domain_poller"), logger.TenantID(t.ID), logger.Domain(*t.CustomDomain))
		}
	}
}
