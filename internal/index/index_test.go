package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mayflower/rpg-explainer/internal/model"
	"github.com/mayflower/rpg-explainer/internal/parse"
	"github.com/mayflower/rpg-explainer/internal/syntax"
)

const orderProgram = `**FREE
dcl-f ORDRFILE usage(*input);
dcl-c MAX_ITEMS 100;

dcl-pr UpdateInventory extpgm('UPDINV');
  item char(10) const;
end-pr;

dcl-proc ProcessOrder;
  read ORDRFILE;
  UpdateInventory(itemNo);
end-proc;
`

func units(t *testing.T, sources ...string) []*parse.Unit {
	t.Helper()
	p := parse.New(nil)
	var out []*parse.Unit
	for i := 0; i+1 < len(sources); i += 2 {
		u, err := p.ParseString(sources[i], sources[i+1])
		require.NoError(t, err)
		t.Cleanup(u.Close)
		out = append(out, u)
	}
	return out
}

func TestBuildOrderScenario(t *testing.T) {
	t.Parallel()

	idx, err := Build(context.Background(), units(t, "order.rpgle", orderProgram))
	require.NoError(t, err)
	require.Len(t, idx.Files, 1)

	f := idx.Files[0]
	assert.Equal(t, "order.rpgle", f.Path)
	assert.Equal(t, []model.FileDeclaration{{
		Name:     "ORDRFILE",
		Keywords: map[string][]string{"usage": {"*input"}},
	}}, f.FileDefs)
	assert.Equal(t, []model.Constant{{Name: "MAX_ITEMS", ValuePreview: "100"}}, f.Constants)
	assert.Equal(t, []string{"UpdateInventory"}, f.Prototypes)

	require.Len(t, f.Procedures, 1)
	p := f.Procedures[0]
	assert.Equal(t, "ProcessOrder", p.Name)
	assert.Equal(t, []string{"UpdateInventory"}, p.CallsExternal)
	assert.Equal(t, []string{}, p.CallsInternal)
	assert.Equal(t, []string{"ORDRFILE"}, p.UsesFiles)
	assert.False(t, f.HasErrors)
}

func TestBuildIsIdempotent(t *testing.T) {
	t.Parallel()

	in := units(t,
		"order.rpgle", orderProgram,
		"util.rpgle", "**FREE\ndcl-proc Helper;\n  ProcessOrder();\nend-proc;\n",
	)
	first, err := Build(context.Background(), in)
	require.NoError(t, err)
	second, err := Build(context.Background(), in)
	require.NoError(t, err)

	a, err := first.JSON(2)
	require.NoError(t, err)
	b, err := second.JSON(2)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	decoded, err := model.Decode(a)
	require.NoError(t, err)
	c, err := decoded.JSON(2)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(c))
}

func TestBuildClassifiesAcrossUnits(t *testing.T) {
	t.Parallel()

	in := units(t,
		"main.rpgle", "**FREE\ndcl-proc Main;\n  Helper(1);\n  QCMDEXC(cmd);\nend-proc;\n",
		"util.rpgle", "**FREE\ndcl-proc Helper;\nend-proc;\n",
	)
	idx, err := Build(context.Background(), in, WithWorkers(4))
	require.NoError(t, err)

	main := idx.Files[0].Procedures[0]
	assert.Equal(t, []string{"Helper"}, main.CallsInternal)
	assert.Equal(t, []string{"QCMDEXC"}, main.CallsExternal)
}

func TestAnalyzeWorkersPreserveOrder(t *testing.T) {
	t.Parallel()

	var sources []string
	for i := range 20 {
		sources = append(sources,
			fmt.Sprintf("p%02d.rpgle", i),
			fmt.Sprintf("**FREE\ndcl-proc Proc%02d;\nend-proc;\n", i))
	}
	in := units(t, sources...)

	serial, err := Build(context.Background(), in, WithWorkers(1))
	require.NoError(t, err)
	parallel, err := Build(context.Background(), in, WithWorkers(8))
	require.NoError(t, err)
	assert.Equal(t, serial, parallel)
	for i, f := range parallel.Files {
		assert.Equal(t, fmt.Sprintf("p%02d.rpgle", i), f.Path)
	}
}

func TestAnalyzeIsolatesFailures(t *testing.T) {
	t.Parallel()

	in := units(t,
		"good.rpgle", orderProgram,
		"bad.rpgle", "**FREE\ndcl-proc \xff\xfe;\nend-proc;\n",
	)

	var mu sync.Mutex
	var seen []string
	results := Analyze(context.Background(), in, WithWorkers(2), WithProgress(func(r Result) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, r.Path)
	}))
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "good.rpgle", results[0].Record.Path)

	var de *syntax.DecodeError
	assert.ErrorAs(t, results[1].Err, &de)
	assert.ElementsMatch(t, []string{"good.rpgle", "bad.rpgle"}, seen)

	_, err := Build(context.Background(), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.rpgle")
	assert.ErrorAs(t, err, &de)
}

func TestAnalyzeCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := Analyze(ctx, units(t, "order.rpgle", orderProgram))
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
}

// memCache keeps records serialized so callers never share them.
type memCache struct {
	mu      sync.Mutex
	records map[string][]byte
	hits    int
	fail    bool
}

func (m *memCache) key(path string, source []byte) string { return path + "\x00" + string(source) }

func (m *memCache) Get(path string, source []byte) (model.FileRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return model.FileRecord{}, false, errors.New("disk on fire")
	}
	data, ok := m.records[m.key(path, source)]
	if !ok {
		return model.FileRecord{}, false, nil
	}
	m.hits++
	var rec model.FileRecord
	err := json.Unmarshal(data, &rec)
	return rec, err == nil, err
}

func (m *memCache) Put(path string, source []byte, rec model.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk on fire")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	m.records[m.key(path, source)] = data
	return nil
}

func TestBuildWithCache(t *testing.T) {
	t.Parallel()

	c := &memCache{records: map[string][]byte{}}
	in := units(t, "order.rpgle", orderProgram)

	first, err := Build(context.Background(), in, WithCache(c))
	require.NoError(t, err)
	assert.Equal(t, 0, c.hits)

	// Cached records are stored before classification.
	var cached model.FileRecord
	require.NoError(t, json.Unmarshal(c.records[c.key("order.rpgle", []byte(orderProgram))], &cached))
	assert.Equal(t, []string{"UpdateInventory"}, cached.Procedures[0].CallsInternal)

	second, err := Build(context.Background(), in, WithCache(c))
	require.NoError(t, err)
	assert.Equal(t, 1, c.hits)
	assert.Equal(t, first, second)
}

func TestBuildCacheFailureWarns(t *testing.T) {
	t.Parallel()

	var warn strings.Builder
	c := &memCache{records: map[string][]byte{}, fail: true}
	idx, err := Build(context.Background(), units(t, "order.rpgle", orderProgram), WithCache(c), WithWarnings(&warn))
	require.NoError(t, err)
	assert.Len(t, idx.Files, 1)
	assert.Contains(t, warn.String(), "Warning: cache lookup for order.rpgle")
	assert.Contains(t, warn.String(), "Warning: cache store for order.rpgle")
}

func TestAssembleEmpty(t *testing.T) {
	t.Parallel()

	idx := Assemble(nil)
	out, err := idx.JSON(0)
	require.NoError(t, err)
	assert.Equal(t, `{"files":[]}`, string(out))
}
