package migrate

import (
	"reflect"
	"strings"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	src := `
-- schema bootstrap
create table users (id text primary key);

insert into users values ('a;b');

create function touch() returns trigger as $fn$
begin
  new.updated_at := now(); return new;
end
$fn$ language plpgsql;
`
	got := splitStatements(src)
	if len(got) != 3 {
		t.Fatalf("expected 3 statements, got %d: %q", len(got), got)
	}
	if got[1] != `insert into users values ('a;b')` {
		t.Fatalf("quoted semicolon split: %q", got[1])
	}
	if !strings.Contains(got[2], "$fn$") {
		t.Fatalf("dollar-quoted body lost: %q", got[2])
	}
}

func TestSplitStatementsTrailingWithoutSemicolon(t *testing.T) {
	got := splitStatements(`select 1`)
	if !reflect.DeepEqual(got, []string{"select 1"}) {
		t.Fatalf("got %q", got)
	}
}
