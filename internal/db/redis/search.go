package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/sanctex-io/sanctex/internal/db"
)

// SearchExact runs an exact-phrase pattern lookup via FT.SEARCH.
// The query is matched as a quoted phrase against the pattern field,
// so only full-term matches come back (the AC tier's contract).
func (s *Store) SearchExact(ctx context.Context, q *db.ExactQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if q.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if q.TopK <= 0 {
		return nil, fmt.Errorf("topK must be positive")
	}

	queryStr := fmt.Sprintf(`@pattern:("%s")`, escapeQuery(q.Query))
	return s.textSearch(ctx, q.IndexName, queryStr, q.TopK, q.ReturnFields)
}

// SearchFuzzy runs an edit-distance-tolerant lookup via FT.SEARCH
// fuzzy term expansion. Each token is wrapped in %...% markers; the
// marker count is the tolerated Levenshtein distance (1 or 2).
// Backend relevance scores are not comparable across queries — the
// fuzzy tier re-scores hits locally.
func (s *Store) SearchFuzzy(ctx context.Context, q *db.FuzzyQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if q.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if q.TopK <= 0 {
		return nil, fmt.Errorf("topK must be positive")
	}

	distance := q.Distance
	if distance < 1 {
		distance = 1
	}
	if distance > 2 {
		distance = 2
	}
	marker := strings.Repeat("%", distance)

	tokens := strings.Fields(q.Query)
	parts := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		parts = append(parts, marker+escapeQuery(tok)+marker)
	}
	queryStr := fmt.Sprintf("@pattern:(%s)", strings.Join(parts, " "))

	return s.textSearch(ctx, q.IndexName, queryStr, q.TopK, q.ReturnFields)
}

// SearchKNN runs a vector similarity search via FT.SEARCH.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	queryStr := fmt.Sprintf("*=>[KNN %d @vector $BLOB]", q.K)

	args := []string{q.IndexName, queryStr}
	if len(q.ReturnFields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(q.ReturnFields)))
		args = append(args, q.ReturnFields...)
	}
	args = append(args, "PARAMS", "2", "BLOB", vectorToBytes(q.Vector), "DIALECT", "2")

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		s.record(false)
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	s.record(true)

	return parseKNNResult(raw)
}

// textSearch issues a WITHSCORES FT.SEARCH shared by exact and fuzzy.
func (s *Store) textSearch(
	ctx context.Context, index, queryStr string, topK int, returnFields []string,
) (*db.SearchResult, error) {
	args := []string{index, queryStr}
	if len(returnFields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(returnFields)))
		args = append(args, returnFields...)
	}
	args = append(args,
		"WITHSCORES",
		"LIMIT", "0", strconv.Itoa(topK),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		s.record(false)
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	s.record(true)

	return parseTextResult(raw)
}

// --- Result parsing ---

func parseTextResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, total)
	// 3-stride: [total, key1, score1, fields1, key2, score2, fields2, ...]
	for i := 1; i+2 < len(raw); i += 3 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		scoreStr, err := raw[i+1].ToString()
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(scoreStr, 64)
		if err != nil {
			continue
		}

		fields, err := raw[i+2].ToArray()
		if err != nil {
			continue
		}

		entries = append(entries, db.SearchEntry{
			Key:    key,
			Score:  score,
			Fields: parseFieldPairs(fields),
		})
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseKNNResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, total)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		entry := db.SearchEntry{
			Key:    key,
			Fields: parseFieldPairs(fields),
		}

		if scoreStr, ok := entry.Fields["__vector_score"]; ok {
			if sc, err := strconv.ParseFloat(scoreStr, 64); err == nil {
				entry.Score = max(0, 1.0-sc) // cosine distance → similarity, clamped to [0,1]
			}
			delete(entry.Fields, "__vector_score")
		}

		entries = append(entries, entry)
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// escapeQuery escapes RediSearch query syntax characters.
func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
)

// vectorToBytes serializes []float32 to the binary BLOB param format.
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
