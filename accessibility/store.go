package accessibility

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	uuid "github.com/satori/go.uuid"
	"go.uber.org/zap"
)

// Store reads and modifies station accessibility documents. Every
// modification appends an entry to the station's change history.
type Store struct {
	backend Backend
	log     *zap.Logger
	mu      sync.Mutex

	Now func() time.Time
}

// NewStore returns a Store persisting documents in backend
func NewStore(backend Backend, log *zap.Logger) *Store {
	return &Store{
		backend: backend,
		log:     log,
		Now:     time.Now,
	}
}

// Get returns the document of a station. Stations without a document get an
// empty one.
func (s *Store) Get(ctx context.Context, ref StationRef) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, DocumentKey(ref), &ref)
}

func (s *Store) load(ctx context.Context, key string, ref *StationRef) (*Config, error) {
	cfg := &Config{}
	data, err := s.backend.Load(ctx, key)
	switch {
	case errors.Is(err, ErrDocumentNotFound):
	case err != nil:
		return nil, fmt.Errorf("load %s: %w", key, err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("load %s: %w", key, err)
		}
	}
	if ref != nil {
		if cfg.Station == "" {
			cfg.Station = ref.Name
		}
		if cfg.Line == "" {
			cfg.Line = ref.Line
		}
	} else if cfg.Station == "" {
		cfg.Station = strings.TrimSuffix(strings.TrimPrefix(key, "access_"), ".json")
	}
	cfg.fillDefaults(s.Now())
	return cfg, nil
}

// Save validates and stores a document. The stored change history must be a
// prefix of the new one.
func (s *Store) Save(ctx context.Context, cfg *Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, DocumentKey(cfg.Ref()), cfg)
}

func (s *Store) save(ctx context.Context, key string, cfg *Config) error {
	existing, err := s.load(ctx, key, nil)
	if err != nil {
		return err
	}
	if len(cfg.ChangeHistory) < len(existing.ChangeHistory) {
		return ErrHistoryRewrite
	}
	for i, change := range existing.ChangeHistory {
		if cfg.ChangeHistory[i].ID != change.ID || !cfg.ChangeHistory[i].Timestamp.Equal(change.Timestamp) {
			return ErrHistoryRewrite
		}
	}

	for _, category := range Categories {
		if err := validateElements(category, cfg.Elements(category)); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return s.backend.Store(ctx, key, data)
}

func validateElements(category Category, elements []*Element) error {
	seen := make(map[string]bool)
	for _, e := range elements {
		if e.ID == "" {
			return fmt.Errorf("%s: element without id", category)
		}
		if seen[e.ID] {
			return fmt.Errorf("%s %s: %w", category, e.ID, ErrDuplicateElement)
		}
		seen[e.ID] = true
		if !category.ValidStatus(e.Status) {
			return fmt.Errorf("%s %s: %q: %w", category, e.ID, e.Status, ErrInvalidStatus)
		}
	}
	return nil
}

// mutation applies a change to a document and describes it for the history
type mutation func(cfg *Config, now time.Time) (action, details string, err error)

func (s *Store) mutate(ctx context.Context, ref StationRef, user string, m mutation) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := DocumentKey(ref)
	cfg, err := s.load(ctx, key, &ref)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	action, details, err := m(cfg, now)
	if err != nil {
		return nil, err
	}
	cfg.ChangeHistory = append(cfg.ChangeHistory, newChange(now, user, action, details))

	if err := s.save(ctx, key, cfg); err != nil {
		return nil, err
	}
	s.log.Info("station accessibility updated",
		zap.String("station", cfg.Station),
		zap.String("line", string(cfg.Line)),
		zap.String("user", user),
		zap.String("action", action))
	return cfg, nil
}

func newChange(now time.Time, user, action, details string) *Change {
	change := &Change{
		Timestamp: now,
		User:      user,
		Action:    action,
		Details:   details,
	}
	if id, err := uuid.NewV4(); err == nil {
		change.ID = id.String()
	}
	return change
}

// SetStatus sets the status of one element of a category, or of all of them
// when scope is "all". Returns the IDs of the updated elements.
func (s *Store) SetStatus(ctx context.Context, ref StationRef, category Category, scope, status, user string) ([]string, error) {
	if category.Config() == nil {
		return nil, ErrUnknownCategory
	}
	if !category.ValidStatus(status) {
		return nil, fmt.Errorf("%q: %w", status, ErrInvalidStatus)
	}

	updated := []string{}
	_, err := s.mutate(ctx, ref, user, func(cfg *Config, now time.Time) (string, string, error) {
		name := strings.ToLower(category.Config().Name)
		var action string
		if scope == "all" {
			for _, e := range cfg.Elements(category) {
				e.Status = status
				e.LastUpdated = now
				updated = append(updated, e.ID)
			}
			action = fmt.Sprintf("Actualizados todos los %s a %s", category.Config().Plural, status)
		} else {
			e := cfg.Element(category, scope)
			if e == nil {
				return "", "", ErrElementNotFound
			}
			e.Status = status
			e.LastUpdated = now
			updated = append(updated, e.ID)
			action = fmt.Sprintf("Actualizado %s %s a %s", name, scope, status)
		}
		return action, "Actualizados: " + strings.Join(updated, ", "), nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ParseElementInput parses "id, location, status[, notes]"
func ParseElementInput(input string) (*Element, error) {
	parts := strings.Split(input, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, errors.New("formato incorrecto, usa: identificador, ubicación, estado")
	}
	return &Element{
		ID:     parts[0],
		Name:   parts[1],
		Status: parts[2],
		Notes:  strings.Join(parts[3:], ", "),
	}, nil
}

// AddElement adds a new element to a category of a station
func (s *Store) AddElement(ctx context.Context, ref StationRef, category Category, element *Element, user string) error {
	if category.Config() == nil {
		return ErrUnknownCategory
	}
	if !category.ValidStatus(element.Status) {
		return fmt.Errorf("%q: %w", element.Status, ErrInvalidStatus)
	}
	_, err := s.mutate(ctx, ref, user, func(cfg *Config, now time.Time) (string, string, error) {
		if cfg.Element(category, element.ID) != nil {
			return "", "", ErrDuplicateElement
		}
		added := *element
		added.LastUpdated = now
		cfg.SetElements(category, append(cfg.Elements(category), &added))
		return fmt.Sprintf("Añadido %s %s (%s)", strings.ToLower(category.Config().Name), added.ID, added.Status), "", nil
	})
	return err
}

// RemoveElement removes an element from a category of a station and returns it
func (s *Store) RemoveElement(ctx context.Context, ref StationRef, category Category, id, user string) (*Element, error) {
	if category.Config() == nil {
		return nil, ErrUnknownCategory
	}
	var removed *Element
	_, err := s.mutate(ctx, ref, user, func(cfg *Config, now time.Time) (string, string, error) {
		elements := cfg.Elements(category)
		kept := make([]*Element, 0, len(elements))
		for _, e := range elements {
			if e.ID == id && removed == nil {
				removed = e
				continue
			}
			kept = append(kept, e)
		}
		if removed == nil {
			return "", "", ErrElementNotFound
		}
		cfg.SetElements(category, kept)
		return fmt.Sprintf("Eliminado %s %s", strings.ToLower(category.Config().Name), id), "", nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// ParseElementsJSON parses a JSON array of elements, each requiring an id and
// a status
func ParseElementsJSON(input string) ([]*Element, error) {
	var elements []*Element
	if err := json.Unmarshal([]byte(input), &elements); err != nil {
		return nil, fmt.Errorf("error al parsear JSON: %w", err)
	}
	for _, e := range elements {
		if e == nil || e.ID == "" {
			return nil, errors.New("falta el campo requerido: id")
		}
		if e.Status == "" {
			return nil, errors.New("falta el campo requerido: status")
		}
	}
	return elements, nil
}

// ReplaceElements replaces every element of a category of a station
func (s *Store) ReplaceElements(ctx context.Context, ref StationRef, category Category, elements []*Element, user string) error {
	if category.Config() == nil {
		return ErrUnknownCategory
	}
	if err := validateElements(category, elements); err != nil {
		return err
	}
	_, err := s.mutate(ctx, ref, user, func(cfg *Config, now time.Time) (string, string, error) {
		for _, e := range elements {
			if e.LastUpdated.IsZero() {
				e.LastUpdated = now
			}
		}
		cfg.SetElements(category, elements)
		return "Edición avanzada de " + string(category), fmt.Sprintf("%d elementos", len(elements)), nil
	})
	return err
}

// SetNotes replaces the free-form notes of a station
func (s *Store) SetNotes(ctx context.Context, ref StationRef, notes, user string) error {
	_, err := s.mutate(ctx, ref, user, func(cfg *Config, now time.Time) (string, string, error) {
		cfg.Notes = notes
		return "Edición avanzada de notes", "", nil
	})
	return err
}

// ParseReplaceInput parses "search → replace [→ scope]". The scope defaults to
// every category.
func ParseReplaceInput(input string) (search, replace string, categories []Category, err error) {
	input = strings.ReplaceAll(input, "->", "→")
	parts := strings.Split(input, "→")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", nil, errors.New("formato incorrecto, usa: valor_buscar → valor_reemplazo")
	}
	categories = Categories
	if len(parts) > 2 && parts[2] != "" && parts[2] != "all" && parts[2] != "todos" {
		category, ok := ParseCategory(parts[2])
		if !ok {
			return "", "", nil, ErrUnknownCategory
		}
		categories = []Category{category}
	}
	return parts[0], parts[1], categories, nil
}

// BulkResult summarizes a bulk replace
type BulkResult struct {
	Stations int
	Elements int
}

// BulkReplace sets to replace the status of every element of the given
// categories, across all stored stations, whose status is search. Nothing is
// written unless replace is valid for every category with a match.
func (s *Store) BulkReplace(ctx context.Context, search, replace string, categories []Category, user string) (*BulkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.backend.Keys(ctx)
	if err != nil {
		return nil, err
	}

	type pending struct {
		key      string
		cfg      *Config
		elements []*Element
	}
	changes := []pending{}
	for _, key := range keys {
		cfg, err := s.load(ctx, key, nil)
		if err != nil {
			return nil, err
		}
		p := pending{key: key, cfg: cfg}
		for _, category := range categories {
			for _, e := range cfg.Elements(category) {
				if e.Status != search {
					continue
				}
				if !category.ValidStatus(replace) {
					return nil, fmt.Errorf("%s: %q: %w", category, replace, ErrInvalidStatus)
				}
				p.elements = append(p.elements, e)
			}
		}
		if len(p.elements) > 0 {
			changes = append(changes, p)
		}
	}

	result := &BulkResult{}
	now := s.Now()
	for _, p := range changes {
		for _, e := range p.elements {
			e.Status = replace
			e.LastUpdated = now
		}
		p.cfg.ChangeHistory = append(p.cfg.ChangeHistory,
			newChange(now, user, fmt.Sprintf("Reemplazo masivo: \"%s\" → \"%s\"", search, replace), ""))
		if err := s.save(ctx, p.key, p.cfg); err != nil {
			return result, err
		}
		result.Stations++
		result.Elements += len(p.elements)
	}
	s.log.Info("bulk accessibility replace",
		zap.String("search", search),
		zap.String("replace", replace),
		zap.Int("stations", result.Stations),
		zap.Int("elements", result.Elements))
	return result, nil
}

// History returns the latest changes of a station, newest first
func (s *Store) History(ctx context.Context, ref StationRef, limit int) ([]*Change, error) {
	cfg, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	history := append([]*Change{}, cfg.ChangeHistory...)
	sortChanges(history, func(i int) time.Time { return history[i].Timestamp })
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	return history, nil
}

// StationChange is a change together with the station it belongs to
type StationChange struct {
	*Change
	Station StationRef
}

// GlobalHistory returns the latest changes across all stations, newest first
func (s *Store) GlobalHistory(ctx context.Context, limit int) ([]StationChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.backend.Keys(ctx)
	if err != nil {
		return nil, err
	}
	all := []StationChange{}
	for _, key := range keys {
		cfg, err := s.load(ctx, key, nil)
		if err != nil {
			s.log.Warn("skipping unreadable accessibility document", zap.String("key", key), zap.Error(err))
			continue
		}
		for _, change := range cfg.ChangeHistory {
			all = append(all, StationChange{Change: change, Station: cfg.Ref()})
		}
	}
	sortChanges(all, func(i int) time.Time { return all[i].Timestamp })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func sortChanges(slice interface{}, timestamp func(i int) time.Time) {
	sort.SliceStable(slice, func(i, j int) bool {
		return timestamp(i).After(timestamp(j))
	})
}
