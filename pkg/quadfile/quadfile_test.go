package quadfile

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vanaheimr/Balder-sub010/pkg/storage"
)

func newStore(t *testing.T) *storage.Store[string, string] {
	t.Helper()
	store, err := storage.NewStore("test",
		func(n int64) string { return strconv.FormatInt(n, 10) },
		func() string { return "default" })
	require.NoError(t, err)
	return store
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{
		"a.yaml":   FormatYAML,
		"a.YML":    FormatYAML,
		"a.tsv":    FormatTSV,
		"a.txt":    FormatTSV,
		"a.jsonl":  FormatJSONL,
		"a.ndjson": FormatJSONL,
	}
	for path, want := range tests {
		got, err := FormatFromPath(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}

	_, err := FormatFromPath("a.csv")
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	want := []Record{
		{Subject: "alice", Predicate: "knows", Object: "bob"},
		{Subject: "bob", Predicate: "knows", Object: "carol", Context: "social"},
	}

	t.Run("yaml", func(t *testing.T) {
		in := `quads:
  - {subject: alice, predicate: knows, object: bob}
  - {subject: bob, predicate: knows, object: carol, context: social}
`
		got, err := Parse(strings.NewReader(in), FormatYAML)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("empty yaml", func(t *testing.T) {
		got, err := Parse(strings.NewReader(""), FormatYAML)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("tsv", func(t *testing.T) {
		in := "# people\nalice\tknows\tbob\n\nbob\tknows\tcarol\tsocial\n"
		got, err := Parse(strings.NewReader(in), FormatTSV)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("tsv wrong field count", func(t *testing.T) {
		_, err := Parse(strings.NewReader("alice\tknows\n"), FormatTSV)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 1")
	})

	t.Run("jsonl", func(t *testing.T) {
		in := `{"subject":"alice","predicate":"knows","object":"bob"}
# comment
{"subject":"bob","predicate":"knows","object":"carol","context":"social"}
`
		got, err := Parse(strings.NewReader(in), FormatJSONL)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("jsonl bad line", func(t *testing.T) {
		_, err := Parse(strings.NewReader("{\"subject\":\"a\"}\n{oops\n"), FormatJSONL)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 2")
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := Parse(strings.NewReader(""), Format("xml"))
		assert.Error(t, err)
	})
}

func TestEncodeRoundTrip(t *testing.T) {
	records := []Record{
		{Subject: "alice", Predicate: "knows", Object: "bob", Context: "default"},
		{Subject: "bob", Predicate: "knows", Object: "carol", Context: "social"},
	}
	for _, format := range []Format{FormatYAML, FormatTSV, FormatJSONL} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, format, records))

			got, err := Parse(&buf, format)
			require.NoError(t, err)
			assert.Equal(t, records, got)
		})
	}
}

func TestEncodeTSVRejectsLossyValues(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
	}{
		{"tab in object", Record{Subject: "a", Predicate: "b", Object: "c\td"}},
		{"newline in subject", Record{Subject: "a\nb", Predicate: "b", Object: "c"}},
		{"carriage return in context", Record{Subject: "a", Predicate: "b", Object: "c", Context: "g\r"}},
		{"leading space", Record{Subject: " a", Predicate: "b", Object: "c"}},
		{"subject looks like a comment", Record{Subject: "#a", Predicate: "b", Object: "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := Encode(&buf, FormatTSV, []Record{{Subject: "x", Predicate: "y", Object: "z"}, tt.rec})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "record 2")
			assert.Zero(t, buf.Len())
		})
	}

	t.Run("same values are fine as JSON lines", func(t *testing.T) {
		records := []Record{{Subject: "#a", Predicate: "b", Object: "c\td", Context: " g"}}
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, FormatJSONL, records))
		got, err := Parse(&buf, FormatJSONL)
		require.NoError(t, err)
		assert.Equal(t, records, got)
	})
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "a.tsv", "alice\tknows\tbob\nbob\tknows\tcarol\tsocial\n")
	second := writeFile(t, dir, "b.yaml", "quads:\n  - {subject: carol, predicate: knows, object: dave}\n")

	t.Run("loads in path order", func(t *testing.T) {
		store := newStore(t)
		result, err := LoadFiles[string](context.Background(), store, first, second)
		require.NoError(t, err)
		assert.Equal(t, Result{Files: 2, Quads: 3}, result)

		got := Records(store.GetQuads(storage.Pattern[string]{}))
		assert.Equal(t, []Record{
			{Subject: "alice", Predicate: "knows", Object: "bob", Context: "default"},
			{Subject: "bob", Predicate: "knows", Object: "carol", Context: "social"},
			{Subject: "carol", Predicate: "knows", Object: "dave", Context: "default"},
		}, got)

		assert.Equal(t, []string{"alice", "bob", "carol", "dave"},
			collectValues(store, "alice", "knows"))
	})

	t.Run("under a transaction", func(t *testing.T) {
		store := newStore(t)
		tx, ctx, err := store.BeginTransaction(context.Background(), storage.TxName("load"))
		require.NoError(t, err)

		result, err := LoadFiles[string](ctx, store, first, second)
		require.NoError(t, err)
		assert.Equal(t, Result{Files: 2, Quads: 3}, result)
		assert.Equal(t, storage.TxRunning, tx.State())
		require.NoError(t, tx.Commit())

		// Each file got its own nested transaction; the outer one lists all quads.
		assert.Len(t, tx.QuadIDs(), 3)
		perTx := map[string]int{}
		for q := range store.GetQuads(storage.Pattern[string]{}) {
			assert.NotEqual(t, tx.ID, q.TransactionID)
			assert.NotZero(t, q.TransactionID)
			perTx[q.TransactionID]++
		}
		var sizes []int
		for _, n := range perTx {
			sizes = append(sizes, n)
		}
		assert.ElementsMatch(t, []int{2, 1}, sizes)
	})

	t.Run("failed file leaves its nested transaction open", func(t *testing.T) {
		store := newStore(t)
		tx, ctx, err := store.BeginTransaction(context.Background())
		require.NoError(t, err)
		blank := writeFile(t, dir, "blank-tx.jsonl", `{"subject":"a","predicate":"","object":"c"}`+"\n")

		_, err = LoadFiles[string](ctx, store, first, blank)
		require.Error(t, err)
		assert.Equal(t, storage.TxNested, tx.State())
		assert.True(t, errors.Is(tx.Commit(), storage.ErrTransactionAlreadyActive))
	})

	t.Run("bad file stops before adding", func(t *testing.T) {
		store := newStore(t)
		bad := writeFile(t, dir, "bad.jsonl", "{not json}\n")

		_, err := LoadFiles[string](context.Background(), store, first, bad)
		assert.Error(t, err)
		assert.Zero(t, store.NumberOfQuads())
	})

	t.Run("rejected quad", func(t *testing.T) {
		store := newStore(t)
		blank := writeFile(t, dir, "blank.jsonl", `{"subject":"a","predicate":"","object":"c"}`+"\n")

		result, err := LoadFiles[string](context.Background(), store, first, blank)
		assert.True(t, errors.Is(err, storage.ErrInvalidArgument), "got %v", err)
		assert.Equal(t, Result{Files: 1, Quads: 2}, result)
	})

	t.Run("missing file", func(t *testing.T) {
		store := newStore(t)
		_, err := LoadFiles[string](context.Background(), store, filepath.Join(dir, "missing.tsv"))
		assert.Error(t, err)
	})
}

func collectValues(store *storage.Store[string, string], subject, predicate string) []string {
	var out []string
	for v := range store.Traverse(subject, predicate, true) {
		out = append(out, v)
	}
	return out
}
