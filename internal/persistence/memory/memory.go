package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"budget/internal/core"
	"budget/internal/persistence"
)

var _ persistence.Store = (*Store)(nil)

type Store struct {
	mu           sync.Mutex
	categories   map[string]core.Category
	transactions map[string]core.Transaction
	nowFn        func() time.Time
}

func New(cats ...core.Category) *Store {
	s := &Store{
		categories:   make(map[string]core.Category),
		transactions: make(map[string]core.Transaction),
		nowFn:        func() time.Time { return time.Now().UTC() },
	}
	for _, c := range dedupeCategories(cats) {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.Spent = core.Money{}
		c.CreatedAt = s.nowFn()
		s.categories[c.ID] = c
	}
	return s
}

// NewFromFiles seeds categories from <base>/seed_categories.txt.
// Each line is "name;budget;color" with budget and color optional.
func NewFromFiles(base string) *Store {
	var cats []core.Category
	for _, line := range readLines(filepath.Join(base, "seed_categories.txt")) {
		if c, ok := parseSeedLine(line); ok {
			cats = append(cats, c)
		}
	}
	return New(cats...)
}

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkCategoryLocked(t.CategoryID); err != nil {
		return core.Transaction{}, err
	}
	t.ID = uuid.New().String()
	t.CreatedAt = s.nowFn()
	t.Normalize()
	s.transactions[t.ID] = t
	return t, nil
}

func (s *Store) UpdateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved, err := s.updateLocked(t)
	if err != nil {
		return core.Transaction{}, err
	}
	s.transactions[saved.ID] = saved
	return saved, nil
}

func (s *Store) UpdateTransactions(_ context.Context, ts []core.Transaction) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0, len(ts))
	for _, t := range ts {
		saved, err := s.updateLocked(t)
		if err != nil {
			return nil, err
		}
		out = append(out, saved)
	}
	for _, t := range out {
		s.transactions[t.ID] = t
	}
	return out, nil
}

func (s *Store) updateLocked(t core.Transaction) (core.Transaction, error) {
	existing, ok := s.transactions[t.ID]
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", t.ID, core.ErrNotFound)
	}
	if err := s.checkCategoryLocked(t.CategoryID); err != nil {
		return core.Transaction{}, err
	}
	t.CreatedAt = existing.CreatedAt
	t.Normalize()
	return t, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[id]; !ok {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	delete(s.transactions, id)
	return nil
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkNameLocked(c.Name, ""); err != nil {
		return core.Category{}, err
	}
	c.ID = uuid.New().String()
	c.CreatedAt = s.nowFn()
	c.Spent = core.Money{}
	s.categories[c.ID] = c
	return c, nil
}

func (s *Store) UpdateCategory(_ context.Context, c core.Category) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.categories[c.ID]
	if !ok {
		return core.Category{}, fmt.Errorf("category %s: %w", c.ID, core.ErrNotFound)
	}
	if err := s.checkNameLocked(c.Name, c.ID); err != nil {
		return core.Category{}, err
	}
	c.CreatedAt = existing.CreatedAt
	c.Spent = core.Money{}
	s.categories[c.ID] = c
	return c, nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[id]; !ok {
		return fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	for txID, t := range s.transactions {
		if t.CategoryID == id {
			t.Unlabel()
			s.transactions[txID] = t
		}
	}
	delete(s.categories, id)
	return nil
}

// ListCategories returns categories ordered by creation time, then name.
func (s *Store) ListCategories(_ context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// ListTransactions returns matching transactions, most recent first.
func (s *Store) ListTransactions(_ context.Context, filter persistence.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0, len(s.transactions))
	for _, t := range s.transactions {
		if filter.Match(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) checkCategoryLocked(id string) error {
	if id == "" {
		return nil
	}
	if _, ok := s.categories[id]; !ok {
		return fmt.Errorf("category %s: %w", id, core.ErrUnknownCategory)
	}
	return nil
}

func (s *Store) checkNameLocked(name, selfID string) error {
	for id, c := range s.categories {
		if id != selfID && core.SameName(c.Name, name) {
			return fmt.Errorf("%w: %s", core.ErrDuplicateCategory, name)
		}
	}
	return nil
}

func parseSeedLine(line string) (core.Category, bool) {
	parts := strings.Split(line, ";")
	c := core.Category{Name: strings.TrimSpace(parts[0])}
	if c.Name == "" {
		return c, false
	}
	if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
		budget, err := core.ParseBudget(parts[1])
		if err != nil {
			return c, false
		}
		c.Budget = budget
	}
	if len(parts) > 2 {
		c.Color = strings.TrimSpace(parts[2])
	}
	return c, true
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// dedupeCategories drops later categories whose name repeats an earlier one,
// ignoring case. Input order is preserved.
func dedupeCategories(in []core.Category) []core.Category {
	seen := map[string]struct{}{}
	out := make([]core.Category, 0, len(in))
	for _, c := range in {
		key := strings.ToLower(strings.TrimSpace(c.Name))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
