//go:build integration

package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/nidhogg/minuku/internal/event"
	"github.com/nidhogg/minuku/internal/record"
	"github.com/testcontainers/testcontainers-go"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"
)

var testStore *Store

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("minuku_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		return 1
	}
	defer testcontainers.TerminateContainer(container)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "pg connection string: %v\n", err)
		return 1
	}
	testStore, err = New(ctx, dsn, zap.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		return 1
	}
	defer testStore.Close()

	if err := testStore.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		return 1
	}
	return m.Run()
}

func TestMigrateIsIdempotent(t *testing.T) {
	if err := testStore.Migrate(context.Background()); err != nil {
		t.Fatalf("second migration run: %v", err)
	}
}

func TestSaveAndListActions(t *testing.T) {
	ctx := context.Background()
	cur, _ := record.NewMood(80, 52, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	prev, _ := record.NewMood(50, 50, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	a := event.NewAction("EXPLAIN_MOOD_CHANGES", "mood_annotation_expected", cur, prev)

	if err := testStore.SaveAction(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := testStore.SaveAction(ctx, a); err != nil {
		t.Fatalf("saving the same action twice: %v", err)
	}

	rows, err := testStore.RecentActions(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	var found *ActionRow
	for i := range rows {
		if rows[i].ID == a.ID() {
			if found != nil {
				t.Fatal("action archived twice")
			}
			found = &rows[i]
		}
	}
	if found == nil {
		t.Fatalf("action %s not archived", a.ID())
	}
	if len(found.Records) != 2 || found.Records[0].Data["mood"] != float64(80) {
		t.Fatalf("records = %+v", found.Records)
	}
}

func TestSaveAndListRecords(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		r := record.NewGeneric("battery", map[string]any{"level": float64(i) / 10}, base.Add(time.Duration(i)*time.Minute))
		if err := testStore.SaveRecord(ctx, r, fmt.Sprintf("cycle-%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := testStore.RecentRecords(ctx, "battery", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].Cycle != "cycle-2" || rows[0].Record.Data["level"] != 0.2 {
		t.Fatalf("rows = %+v", rows)
	}
	if _, err := rows[0].Record.Unwrap(); err != nil {
		t.Fatalf("archived record does not unwrap: %v", err)
	}
}

func TestAttachArchivesBusTraffic(t *testing.T) {
	bus := event.NewBus(zap.NewNop())
	detach := testStore.Attach(bus)

	loc, _ := record.NewLocation(42.28, -83.74, 5, time.Date(2024, 3, 3, 8, 0, 0, 0, time.UTC))
	bus.Publish(context.Background(), event.NewStateChange(loc, "attach-cycle"))
	a := event.NewAction("ASK_ABOUT_PLACE", "place_changed")
	bus.Publish(context.Background(), a)
	detach()
	bus.Close()

	rows, err := testStore.RecentRecords(context.Background(), record.TypeLocation, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) == 0 || rows[0].Cycle != "attach-cycle" {
		t.Fatalf("location not archived: %+v", rows)
	}
	actions, err := testStore.RecentActions(context.Background(), 50)
	if err != nil {
		t.Fatal(err)
	}
	for _, row := range actions {
		if row.ID == a.ID() {
			return
		}
	}
	t.Fatalf("action %s not archived", a.ID())
}
