package accessibility

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/metroinfo/metrobot/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var losHeroes = StationRef{Name: "Los Héroes", Line: types.LineL1}

func newTestStore(t *testing.T) (*Store, *FileBackend) {
	backend, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	store := NewStore(backend, zap.NewNop())
	clock := time.Date(2025, time.June, 18, 12, 0, 0, 0, time.UTC)
	store.Now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return store, backend
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "los-heroes", NormalizeKey("Los Héroes"))
	assert.Equal(t, "nunoa-l3", NormalizeKey("Ñuñoa  L3"))
	assert.Equal(t, "plaza-de-maipu", NormalizeKey("Plaza de Maipú!"))
}

func TestDocumentKey(t *testing.T) {
	assert.Equal(t, "access_los-heroes-l1.json", DocumentKey(losHeroes))
	assert.Equal(t, "access_san-pablo-l1.json", DocumentKey(StationRef{Name: "San Pablo L1", Line: types.LineL1}))
	assert.Equal(t, "access_vicente-valdes-l4a.json", DocumentKey(StationRef{Name: "Vicente Valdés", Line: types.LineL4A}))
}

func TestGet_MissingDocument(t *testing.T) {
	store, _ := newTestStore(t)
	cfg, err := store.Get(context.Background(), losHeroes)
	require.NoError(t, err)
	assert.Equal(t, "Los Héroes", cfg.Station)
	assert.Equal(t, types.LineL1, cfg.Line)
	assert.Empty(t, cfg.Elevators)
	assert.NotNil(t, cfg.ChangeHistory)
}

func TestGet_FillsDefaults(t *testing.T) {
	store, backend := newTestStore(t)
	legacy := `{"elevators": [{"id": "A1", "name": "Andén norte"}], "accesses": [{"id": "B", "name": "Salida B"}]}`
	require.NoError(t, os.WriteFile(filepath.Join(backend.Dir, DocumentKey(losHeroes)), []byte(legacy), 0o644))

	cfg, err := store.Get(context.Background(), losHeroes)
	require.NoError(t, err)
	require.Len(t, cfg.Elevators, 1)
	assert.Equal(t, "operativa", cfg.Elevators[0].Status)
	assert.False(t, cfg.Elevators[0].LastUpdated.IsZero())
	assert.Equal(t, "abierto", cfg.Accesses[0].Status)
	assert.NotNil(t, cfg.Escalators)
}

func TestAddSetRemoveElement(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	element, err := ParseElementInput("A1, Andén norte, operativa, junto a la escalera")
	require.NoError(t, err)
	assert.Equal(t, "junto a la escalera", element.Notes)
	require.NoError(t, store.AddElement(ctx, losHeroes, Elevators, element, "Ana (1)"))

	err = store.AddElement(ctx, losHeroes, Elevators, &Element{ID: "A1", Name: "otro", Status: "operativa"}, "Ana (1)")
	assert.True(t, errors.Is(err, ErrDuplicateElement))

	err = store.AddElement(ctx, losHeroes, Elevators, &Element{ID: "A2", Name: "otro", Status: "abierto"}, "Ana (1)")
	assert.True(t, errors.Is(err, ErrInvalidStatus))

	require.NoError(t, store.AddElement(ctx, losHeroes, Elevators, &Element{ID: "A2", Name: "Mezanina", Status: "operativa"}, "Ana (1)"))

	updated, err := store.SetStatus(ctx, losHeroes, Elevators, "A2", "fuera de servicio", "Ana (1)")
	require.NoError(t, err)
	assert.Equal(t, []string{"A2"}, updated)

	_, err = store.SetStatus(ctx, losHeroes, Elevators, "A9", "operativa", "Ana (1)")
	assert.True(t, errors.Is(err, ErrElementNotFound))
	_, err = store.SetStatus(ctx, losHeroes, Elevators, "all", "cerrado", "Ana (1)")
	assert.True(t, errors.Is(err, ErrInvalidStatus))

	cfg, err := store.Get(ctx, losHeroes)
	require.NoError(t, err)
	out := cfg.OutOfService()
	require.Len(t, out, 1)
	assert.Equal(t, "A2", out[0].ID)
	assert.Contains(t, cfg.Summary(time.Now()), "A2 (Mezanina): fuera de servicio")

	updated, err = store.SetStatus(ctx, losHeroes, Elevators, "all", "en mantención", "Ana (1)")
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2"}, updated)

	removed, err := store.RemoveElement(ctx, losHeroes, Elevators, "A1", "Ana (1)")
	require.NoError(t, err)
	assert.Equal(t, "Andén norte", removed.Name)
	_, err = store.RemoveElement(ctx, losHeroes, Elevators, "A1", "Ana (1)")
	assert.True(t, errors.Is(err, ErrElementNotFound))

	history, err := store.History(ctx, losHeroes, 15)
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, "Eliminado ascensor A1", history[0].Action)
	assert.Equal(t, "Ana (1)", history[0].User)
	assert.NotEmpty(t, history[0].ID)
	assert.True(t, history[0].Timestamp.After(history[4].Timestamp))
}

func TestSave_HistoryIsAppendOnly(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetNotes(ctx, losHeroes, "Acceso por calle Alonso Ovalle", "Ana (1)"))
	require.NoError(t, store.SetNotes(ctx, losHeroes, "Acceso por calle Tucapel Jiménez", "Ana (1)"))

	cfg, err := store.Get(ctx, losHeroes)
	require.NoError(t, err)
	require.Len(t, cfg.ChangeHistory, 2)

	truncated := *cfg
	truncated.ChangeHistory = cfg.ChangeHistory[:1]
	assert.True(t, errors.Is(store.Save(ctx, &truncated), ErrHistoryRewrite))

	rewritten := *cfg
	rewritten.ChangeHistory = []*Change{cfg.ChangeHistory[1], cfg.ChangeHistory[0]}
	assert.True(t, errors.Is(store.Save(ctx, &rewritten), ErrHistoryRewrite))

	cfg.ChangeHistory = append(cfg.ChangeHistory, &Change{Timestamp: time.Now(), User: "test", Action: "manual"})
	assert.NoError(t, store.Save(ctx, cfg))
}

func TestReplaceElements(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	elements, err := ParseElementsJSON(`[{"id": "E1", "name": "Andén", "status": "operativa"}, {"id": "E2", "status": "restringido"}]`)
	require.NoError(t, err)
	require.NoError(t, store.ReplaceElements(ctx, losHeroes, Escalators, elements, "Ana (1)"))

	cfg, err := store.Get(ctx, losHeroes)
	require.NoError(t, err)
	assert.Len(t, cfg.Escalators, 2)

	_, err = ParseElementsJSON(`[{"name": "sin id", "status": "operativa"}]`)
	assert.Error(t, err)
	_, err = ParseElementsJSON(`{"id": "E1"}`)
	assert.Error(t, err)

	dup := []*Element{{ID: "E1", Status: "operativa"}, {ID: "E1", Status: "operativa"}}
	assert.True(t, errors.Is(store.ReplaceElements(ctx, losHeroes, Escalators, dup, "Ana (1)"), ErrDuplicateElement))
}

func TestParseReplaceInput(t *testing.T) {
	search, replace, categories, err := ParseReplaceInput("fuera de servicio → operativa")
	require.NoError(t, err)
	assert.Equal(t, "fuera de servicio", search)
	assert.Equal(t, "operativa", replace)
	assert.Equal(t, Categories, categories)

	_, _, categories, err = ParseReplaceInput("cerrado -> abierto -> accesos")
	require.NoError(t, err)
	assert.Equal(t, []Category{Accesses}, categories)

	_, _, _, err = ParseReplaceInput("solo un valor")
	assert.Error(t, err)
	_, _, _, err = ParseReplaceInput("a → b → trenes")
	assert.True(t, errors.Is(err, ErrUnknownCategory))
}

func TestBulkReplace(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()
	baquedano := StationRef{Name: "Baquedano", Line: types.LineL5}

	require.NoError(t, store.AddElement(ctx, losHeroes, Elevators, &Element{ID: "A1", Name: "x", Status: "fuera de servicio"}, "u"))
	require.NoError(t, store.AddElement(ctx, losHeroes, Escalators, &Element{ID: "E1", Name: "x", Status: "fuera de servicio"}, "u"))
	require.NoError(t, store.AddElement(ctx, baquedano, Elevators, &Element{ID: "A1", Name: "x", Status: "fuera de servicio"}, "u"))
	require.NoError(t, store.AddElement(ctx, baquedano, Accesses, &Element{ID: "B", Name: "x", Status: "cerrado"}, "u"))

	_, err := store.BulkReplace(ctx, "fuera de servicio", "abierto", Categories, "u")
	assert.True(t, errors.Is(err, ErrInvalidStatus))
	cfg, err := store.Get(ctx, losHeroes)
	require.NoError(t, err)
	assert.Equal(t, "fuera de servicio", cfg.Elevators[0].Status, "nothing is written when validation fails")

	result, err := store.BulkReplace(ctx, "fuera de servicio", "operativa", []Category{Elevators}, "u")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Stations)
	assert.Equal(t, 2, result.Elements)

	cfg, err = store.Get(ctx, losHeroes)
	require.NoError(t, err)
	assert.Equal(t, "operativa", cfg.Elevators[0].Status)
	assert.Equal(t, "fuera de servicio", cfg.Escalators[0].Status)

	keys, err := backend.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"access_baquedano-l5.json", "access_los-heroes-l1.json"}, keys)

	global, err := store.GlobalHistory(ctx, 20)
	require.NoError(t, err)
	require.Len(t, global, 6)
	assert.Contains(t, global[0].Action, "Reemplazo masivo")

	limited, err := store.GlobalHistory(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, limited, 3)
}

func TestStoredDocumentShape(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.AddElement(ctx, losHeroes, Accesses, &Element{ID: "A", Name: "Salida A", Status: "abierto"}, "Ana (1)"))

	data, err := backend.Load(ctx, DocumentKey(losHeroes))
	require.NoError(t, err)
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "Los Héroes", raw["station"])
	assert.Equal(t, "l1", raw["line"])
	assert.Len(t, raw["accesses"], 1)
	assert.Len(t, raw["changeHistory"], 1)
}
