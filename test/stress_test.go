package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"campflow/campaign"
	"campflow/dispute"
	"campflow/escrow"
	"campflow/proof"
	"campflow/test/actors"
	"campflow/test/chaos"
	"campflow/test/infra"
	"campflow/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent applicants")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func seedRNG(seed int64) { rand.Seed(seed) }

// TestEscrowConcurrency hammers the whole campaign lifecycle concurrently:
// one business opening campaigns and selecting, influencers applying,
// submitting and claiming, a disputer and resolver fighting over proofs, and
// a keeper firing the deadline triggers, while chaos kills random backends.
// Invariant oracles run against the database every two seconds.
func TestEscrowConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	seedRNG(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	deps := mustSeed(t, ctx, pool)

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	g.Go(func() error { return actors.Opener(ctx2, deps, stop) })
	for _, influencerID := range deps.Influencers {
		influencerID := influencerID
		g.Go(func() error { return actors.Applicant(ctx2, deps, influencerID, stop) })
	}
	g.Go(func() error { return actors.Selector(ctx2, deps, stop) })
	g.Go(func() error { return actors.Submitter(ctx2, deps, stop) })
	g.Go(func() error { return actors.Approver(ctx2, deps, stop) })
	g.Go(func() error { return actors.Disputer(ctx2, deps, stop) })
	g.Go(func() error { return actors.Poller(ctx2, deps, stop) })
	g.Go(func() error { return actors.Claimer(ctx2, deps, stop) })
	g.Go(func() error { return actors.OutboxWorker(ctx2, deps, stop) })
	go chaos.TerminateRandomBackend(ctx2, pool, "", stop)

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) actors.Deps {
	t.Helper()

	deps := actors.Deps{
		Pool:      pool,
		Campaigns: campaign.NewService(pool, nil),
		Proofs:    proof.NewService(pool, nil),
		Disputes:  dispute.NewService(pool, nil).WithResolutionWindow(3 * time.Second),
		Escrow:    escrow.NewService(pool, pool, nil),
		Currency:  "usdx",
	}

	if _, err := pool.Exec(ctx,
		`INSERT INTO currencies (token, symbol, decimals) VALUES ('usdx', 'USDX', 6) ON CONFLICT (token) DO NOTHING`); err != nil {
		t.Fatalf("seed currency: %v", err)
	}

	seedUser := func(role string) string {
		var id string
		if err := pool.QueryRow(ctx,
			`INSERT INTO users (email, full_name, role) VALUES ($1, $2, $3::user_role) RETURNING id`,
			fmt.Sprintf("%s%d@example.com", role, rand.Int63()), "Stress "+role, role).Scan(&id); err != nil {
			t.Fatalf("seed %s: %v", role, err)
		}
		return id
	}

	deps.BusinessID = seedUser("business")
	deps.ResolverID = seedUser("resolver")
	if _, err := pool.Exec(ctx, `INSERT INTO resolvers (user_id) VALUES ($1)`, deps.ResolverID); err != nil {
		t.Fatalf("seed resolver set: %v", err)
	}

	for i := 0; i < *flConcurrency; i++ {
		deps.Influencers = append(deps.Influencers, seedUser("influencer"))
	}
	return deps
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"campaigns", `SELECT id, status, budget, selected_count, max_slots FROM campaigns ORDER BY created_at DESC LIMIT 50`},
		{"campaign_escrow", `SELECT campaign_id, deposited, committed, refunded FROM campaign_escrow ORDER BY updated_at DESC LIMIT 50`},
		{"claimable_balances", `SELECT influencer_id, currency, amount, paid_out FROM claimable_balances ORDER BY updated_at DESC LIMIT 50`},
		{"timeline_events", `SELECT id, campaign_id, seq, type, created_at FROM timeline_events ORDER BY id DESC LIMIT 50`},
		{"disputes", `SELECT id, application_id, status, deadline FROM disputes ORDER BY raised_at DESC LIMIT 50`},
		{"outbox", `SELECT id, topic, status, attempts, created_at FROM outbox ORDER BY created_at DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
