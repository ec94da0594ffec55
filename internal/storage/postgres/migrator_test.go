package postgres

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrationsFromFS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		files   fstest.MapFS
		wantErr string
		wantLen int
	}{
		{
			name: "sorted pairs",
			files: fstest.MapFS{
				"sql/migrations/0002_more.up.sql":   {Data: []byte("CREATE TABLE b (id INT);")},
				"sql/migrations/0002_more.down.sql": {Data: []byte("DROP TABLE b;")},
				"sql/migrations/0001_init.up.sql":   {Data: []byte("CREATE TABLE a (id INT);")},
				"sql/migrations/0001_init.down.sql": {Data: []byte("DROP TABLE a;")},
			},
			wantLen: 2,
		},
		{
			name:    "missing down",
			files:   fstest.MapFS{"sql/migrations/0001_init.up.sql": {Data: []byte("SELECT 1;")}},
			wantErr: "both up and down",
		},
		{
			name:    "invalid name",
			files:   fstest.MapFS{"sql/migrations/not_a_migration.sql": {Data: []byte("SELECT 1;")}},
			wantErr: "invalid migration file name",
		},
		{
			name: "empty body",
			files: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":   {Data: []byte("   \n")},
				"sql/migrations/0001_init.down.sql": {Data: []byte("DROP TABLE a;")},
			},
			wantErr: "empty",
		},
		{
			name: "name mismatch",
			files: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":    {Data: []byte("SELECT 1;")},
				"sql/migrations/0001_other.down.sql": {Data: []byte("SELECT 1;")},
			},
			wantErr: "name mismatch",
		},
		{
			name:    "no files",
			files:   fstest.MapFS{},
			wantErr: "no migration files",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			migrations, err := loadMigrationsFromFS(tt.files)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(migrations) != tt.wantLen {
				t.Fatalf("expected %d migrations, got %d", tt.wantLen, len(migrations))
			}
			for i := 1; i < len(migrations); i++ {
				if migrations[i-1].Version >= migrations[i].Version {
					t.Fatalf("migrations are not sorted: %+v", migrations)
				}
			}
		})
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		t.Fatalf("embedded migrations are invalid: %v", err)
	}
	if migrations[0].Version != 1 || migrations[0].Name != "init" {
		t.Fatalf("unexpected first migration %d_%s", migrations[0].Version, migrations[0].Name)
	}
	for _, table := range []string{"orders", "order_items", "outbox_messages"} {
		if !strings.Contains(migrations[0].UpSQL, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("init migration must create %s", table)
		}
	}
	if !strings.Contains(migrations[0].UpSQL, "WHERE idempotency_key IS NOT NULL") {
		t.Fatal("idempotency index must be partial")
	}
}

func TestPlanMigrations(t *testing.T) {
	t.Parallel()

	all := []migration{{Version: 1, Name: "a"}, {Version: 2, Name: "b"}, {Version: 3, Name: "c"}}

	tests := []struct {
		name      string
		applied   []int64
		direction migrationDirection
		steps     int
		want      []int64
		wantErr   bool
	}{
		{name: "up all", direction: migrationUp, want: []int64{1, 2, 3}},
		{name: "up skips applied", applied: []int64{1}, direction: migrationUp, want: []int64{2, 3}},
		{name: "up one step", direction: migrationUp, steps: 1, want: []int64{1}},
		{name: "down newest first", applied: []int64{1, 2}, direction: migrationDown, steps: 1, want: []int64{2}},
		{name: "down nothing applied", direction: migrationDown, steps: 1},
		{name: "down unknown version", applied: []int64{9}, direction: migrationDown, steps: 1, wantErr: true},
		{name: "bad direction", direction: migrationDirection("sideways"), wantErr: true},
	}

	for _, tt := range tests {
		plan, err := planMigrations(all, tt.applied, tt.direction, tt.steps)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.name, err)
		}
		if len(plan) != len(tt.want) {
			t.Fatalf("%s: expected %v, got %+v", tt.name, tt.want, plan)
		}
		for i, m := range plan {
			if m.Version != tt.want[i] {
				t.Fatalf("%s: expected %v, got %+v", tt.name, tt.want, plan)
			}
		}
	}
}
