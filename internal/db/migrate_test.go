package db

import "testing"

func TestMigrateURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost:5432/profiles":   "pgx5://u:p@localhost:5432/profiles",
		"postgresql://u:p@localhost:5432/profiles": "pgx5://u:p@localhost:5432/profiles",
		"pgx5://u:p@localhost/profiles":            "pgx5://u:p@localhost/profiles",
	}
	for input, expect := range cases {
		if got := migrateURL(input); got != expect {
			t.Fatalf("migrateURL(%s) = %s, want %s", input, got, expect)
		}
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) == 0 || len(entries)%2 != 0 {
		t.Fatalf("expected paired up/down migrations, got %d files", len(entries))
	}
}
