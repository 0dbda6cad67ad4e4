package bot

import (
	"context"
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/lox/casino/internal/client"
	"github.com/lox/casino/internal/server"
	"github.com/lox/casino/internal/settlement"
	"github.com/lox/casino/internal/store"
	"github.com/lox/casino/internal/table"
)

func TestBotsPlayAgainstServer(t *testing.T) {
	if testing.Short() {
		t.Skip("plays several hands over a real socket")
	}
	logger := quiet()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := store.Open(ctx, filepath.Join(t.TempDir(), "bots.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	settler := settlement.New(db, settlement.Config{MaxAttempts: 3, Backoff: time.Millisecond}, logger)
	registry := table.NewRegistry(table.DefaultStakes(), logger,
		table.WithBalances(db),
		table.WithNotifier(db),
		table.WithHandTracker(db),
		table.WithSettlementSink(settler),
		table.WithRand(rand.New(rand.NewPCG(7, 11))),
	)
	srv := server.New(server.Config{WSAddress: "127.0.0.1:0", DefaultChips: 1000}, db, registry, settler, logger)
	require.NoError(t, srv.Listen())

	serveCtx, stopServer := context.WithCancel(ctx)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(serveCtx) }()

	url := "http://" + srv.WSAddr().String()
	playCtx, stopPlay := context.WithCancel(ctx)
	defer stopPlay()

	g, gctx := errgroup.WithContext(playCtx)
	for _, name := range []string{"alice", "bob"} {
		c, err := client.Dial(ctx, url, logger)
		require.NoError(t, err)
		require.NoError(t, c.Register(ctx, name, "secret"))

		r := NewRunner(c, CallBot{}, Config{
			Table:        "lounge",
			PollInterval: 5 * time.Millisecond,
			MaxHands:     2,
		}, logger)
		g.Go(func() error {
			defer c.Close()
			// The first bot to finish ends the session for both.
			defer stopPlay()
			return r.Run(gctx)
		})
	}
	require.NoError(t, g.Wait())

	stopServer()
	require.NoError(t, <-served)

	// Chips move between players but are never created or destroyed.
	alice, err := db.ChipBalance(ctx, "alice")
	require.NoError(t, err)
	bob, err := db.ChipBalance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2000, alice+bob)

	history, err := db.HandHistory(ctx, "alice", 10)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(history), 2)
	assert.Empty(t, settler.Failed())
}
