package nl2sql

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/retailsearch/retailsearch/internal/pool"
	"github.com/retailsearch/retailsearch/internal/query"
)

type stubTranslator struct {
	result Result
	err    error
	got    Request
	calls  int
}

func (s *stubTranslator) Translate(_ context.Context, req Request) (Result, error) {
	s.calls++
	s.got = req
	return s.result, s.err
}

func TestGenerateReturnsTranslatedStatement(t *testing.T) {
	translator := &stubTranslator{result: Result{SQL: " SELECT name FROM apparels WHERE color = 'red' ", Provider: "stub"}}
	service := newService(t, translator, Options{})

	statement, err := service.Generate(context.Background(), SearchRequest{Text: "  red sneakers "})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if statement.Text != "SELECT name FROM apparels WHERE color = 'red'" {
		t.Fatalf("statement = %q", statement.Text)
	}
	if translator.got.ConfigName != DefaultConfigName || translator.got.NaturalLanguage != "red sneakers" {
		t.Fatalf("translator request = %#v", translator.got)
	}
}

func TestGenerateRejectsBlankSearch(t *testing.T) {
	translator := &stubTranslator{}
	service := newService(t, translator, Options{})

	if _, err := service.Generate(context.Background(), SearchRequest{Text: " \t"}); !errors.Is(err, ErrEmptySearch) {
		t.Fatalf("Generate() error = %v, want ErrEmptySearch", err)
	}
	if translator.calls != 0 {
		t.Fatalf("translator called %d times", translator.calls)
	}
}

func TestGenerateMapsTranslatorFailures(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	service := newService(t, &stubTranslator{err: cause}, Options{})
	_, err := service.Generate(context.Background(), SearchRequest{Text: "red sneakers"})
	if !errors.Is(err, ErrTranslationUnavailable) || !errors.Is(err, cause) {
		t.Fatalf("Generate() error = %v", err)
	}

	service = newService(t, &stubTranslator{result: Result{SQL: "  "}}, Options{})
	if _, err := service.Generate(context.Background(), SearchRequest{Text: "red sneakers"}); !errors.Is(err, ErrTranslationEmpty) {
		t.Fatalf("Generate() error = %v, want ErrTranslationEmpty", err)
	}
}

func TestGeneratePassesSchemaContext(t *testing.T) {
	translator := &stubTranslator{result: Result{SQL: "SELECT 1"}}
	service := newService(t, translator, Options{
		ConfigName: "custom_cfg",
		Schema: func(context.Context) ([]TableContext, error) {
			return []TableContext{{TableName: "apparels"}}, nil
		},
	})
	if _, err := service.Generate(context.Background(), SearchRequest{Text: "boots"}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if translator.got.ConfigName != "custom_cfg" || len(translator.got.Tables) != 1 {
		t.Fatalf("translator request = %#v", translator.got)
	}
}

func TestGenerateTranslatesWithoutSchemaWhenLoadFails(t *testing.T) {
	translator := &stubTranslator{result: Result{SQL: "SELECT 1"}}
	service := newService(t, translator, Options{
		Schema: func(context.Context) ([]TableContext, error) { return nil, errors.New("pool exhausted") },
	})
	if _, err := service.Generate(context.Background(), SearchRequest{Text: "boots"}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if translator.calls != 1 {
		t.Fatalf("translator calls = %d", translator.calls)
	}
}

func TestAlloyDBTranslatorBindsParameters(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	connPool, err := pool.New(db, pool.Config{Size: 1, AcquireTimeout: time.Second})
	if err != nil {
		t.Fatalf("pool.New() error = %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta(alloyDBGetSQL)).
		WithArgs(DefaultConfigName, "red sneakers'; DROP TABLE apparels; --").
		WillReturnRows(sqlmock.NewRows([]string{"sql"}).AddRow("SELECT name FROM apparels"))
	mock.ExpectQuery(regexp.QuoteMeta(alloyDBGetSQL)).
		WithArgs(DefaultConfigName, "gibberish").
		WillReturnRows(sqlmock.NewRows([]string{"sql"}).AddRow(nil))

	translator, err := NewAlloyDBTranslator(connPool)
	if err != nil {
		t.Fatalf("NewAlloyDBTranslator() error = %v", err)
	}
	service := newService(t, translator, Options{Provider: "alloydb"})

	statement, err := service.Generate(context.Background(), SearchRequest{Text: "red sneakers'; DROP TABLE apparels; --"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if statement.Text != "SELECT name FROM apparels" {
		t.Fatalf("statement = %q", statement.Text)
	}
	if _, err := service.Generate(context.Background(), SearchRequest{Text: "gibberish"}); !errors.Is(err, ErrTranslationEmpty) {
		t.Fatalf("Generate() error = %v, want ErrTranslationEmpty", err)
	}
	if leased := connPool.Stats().Leased; leased != 0 {
		t.Fatalf("leased = %d", leased)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

type stubExecutor struct {
	results map[string]query.Result
}

func (s *stubExecutor) Execute(_ context.Context, statement query.Statement) (query.Result, error) {
	result, ok := s.results[statement.Text]
	if !ok {
		return query.Result{}, errors.New("relation does not exist")
	}
	return result, nil
}

func TestLoadTableContexts(t *testing.T) {
	executor := &stubExecutor{results: map[string]query.Result{
		`SELECT * FROM "apparels" LIMIT 2`: {
			Columns: []string{"name", "color"},
			Rows:    [][]string{{"Red Dress", "red"}, {"Blue Boot", "blue"}},
		},
	}}
	contexts, err := LoadTableContexts(context.Background(), executor, []string{"apparels", "missing"}, 2)
	if err == nil {
		t.Fatal("expected error for missing table")
	}
	if len(contexts) != 2 {
		t.Fatalf("contexts = %#v", contexts)
	}
	if len(contexts[0].Columns) != 2 || len(contexts[0].SampleRows) != 2 {
		t.Fatalf("apparels context = %#v", contexts[0])
	}
	if contexts[1].TableName != "missing" || len(contexts[1].Columns) != 0 {
		t.Fatalf("missing context = %#v", contexts[1])
	}
}

func TestCachedSchemaReusesResult(t *testing.T) {
	calls := 0
	executor := executorFunc(func(context.Context, query.Statement) (query.Result, error) {
		calls++
		return query.Result{Columns: []string{"name"}}, nil
	})
	schema := CachedSchema(executor, []string{"apparels"}, 1, time.Minute)
	for i := 0; i < 3; i++ {
		if _, err := schema(context.Background()); err != nil {
			t.Fatalf("schema() error = %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
}

type executorFunc func(context.Context, query.Statement) (query.Result, error)

func (f executorFunc) Execute(ctx context.Context, statement query.Statement) (query.Result, error) {
	return f(ctx, statement)
}

func newService(t *testing.T, translator Translator, options Options) *Service {
	t.Helper()
	service, err := NewService(translator, options, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return service
}
