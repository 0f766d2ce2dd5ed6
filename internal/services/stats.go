package services

import (
	"sort"
	"strings"
	"time"

	"budget/internal/cache"
	"budget/internal/core"
	"budget/internal/persistence"
)

const DefaultStatsCacheTTL = 30 * time.Second

// StatsService is the read side of the ledger. Every method reads one
// consistent state under the ledger's read lock and never mutates.
type StatsService struct {
	ledger    *LedgerService
	portfolio *cache.LRUCache[uint64, core.PortfolioStats]
}

// NewStatsService caches portfolio stats per state version. A ttl of zero
// uses DefaultStatsCacheTTL.
func NewStatsService(ledger *LedgerService, ttl time.Duration) *StatsService {
	if ttl <= 0 {
		ttl = DefaultStatsCacheTTL
	}
	return &StatsService{
		ledger:    ledger,
		portfolio: cache.NewLRUCache[uint64, core.PortfolioStats](4, ttl),
	}
}

// Cache exposes the portfolio cache so a cache.Manager can sweep it.
func (s *StatsService) Cache() cache.Cleaner {
	return s.portfolio
}

// CategoryStats returns zero stats for an unknown id.
func (s *StatsService) CategoryStats(id string) core.CategoryStats {
	c, ok := s.ledger.category(id)
	if !ok {
		return core.CategoryStats{}
	}
	return c.Stats()
}

func (s *StatsService) PortfolioStats() core.PortfolioStats {
	s.ledger.mu.RLock()
	defer s.ledger.mu.RUnlock()

	stats := s.portfolio.GetOrCompute(s.ledger.version, func() core.PortfolioStats {
		return portfolioOf(s.ledger.categoriesLocked())
	})
	stats.OverBudget = append([]core.Category(nil), stats.OverBudget...)
	return stats
}

func portfolioOf(cats []core.Category) core.PortfolioStats {
	var p core.PortfolioStats
	for _, c := range cats {
		p.TotalBudget = p.TotalBudget.Add(c.Budget)
		p.TotalSpent = p.TotalSpent.Add(c.Spent)
		if c.IsOverBudget() {
			p.OverBudget = append(p.OverBudget, c)
		}
	}
	p.TotalRemaining = p.TotalBudget.Sub(p.TotalSpent)
	p.OverallUsagePercentage = core.Percent(p.TotalSpent, p.TotalBudget)
	p.CategoriesCount = len(cats)
	sortByName(p.OverBudget)
	return p
}

// TransactionsFor lists the category's transactions, newest first.
func (s *StatsService) TransactionsFor(categoryID string) []core.Transaction {
	if categoryID == "" {
		return nil
	}
	views := s.Transactions(persistence.TransactionFilter{CategoryID: categoryID})
	out := make([]core.Transaction, len(views))
	for i, v := range views {
		out[i] = v.Transaction
	}
	return out
}

func (s *StatsService) UnlabeledTransactions() []core.Transaction {
	views := s.Transactions(persistence.TransactionFilter{Unlabeled: true})
	out := make([]core.Transaction, len(views))
	for i, v := range views {
		out[i] = v.Transaction
	}
	return out
}

// Transactions joins matching transactions with their category, newest first
// with ties broken by id.
func (s *StatsService) Transactions(filter persistence.TransactionFilter) []core.TransactionView {
	s.ledger.mu.RLock()
	defer s.ledger.mu.RUnlock()

	var out []core.TransactionView
	for _, t := range s.ledger.transactions {
		if !filter.Match(t) {
			continue
		}
		v := core.TransactionView{Transaction: t}
		if c, ok := s.ledger.categories[t.CategoryID]; ok {
			v.Category = &c
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Transaction, out[j].Transaction
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.After(b.OccurredAt)
		}
		return a.ID < b.ID
	})
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out
}

func (s *StatsService) FindCategory(id string) (core.Category, bool) {
	return s.ledger.category(id)
}

// FindCategoryByName matches names ignoring case and surrounding spaces.
func (s *StatsService) FindCategoryByName(name string) (core.Category, bool) {
	s.ledger.mu.RLock()
	defer s.ledger.mu.RUnlock()
	for _, c := range s.ledger.categories {
		if core.SameName(c.Name, name) {
			return c, true
		}
	}
	return core.Category{}, false
}

func (s *StatsService) Categories() []core.Category {
	return s.filter(func(core.Category) bool { return true })
}

func (s *StatsService) OverBudget() []core.Category {
	return s.filter(core.Category.IsOverBudget)
}

// UnderBudget lists categories with a budget that is not exceeded.
func (s *StatsService) UnderBudget() []core.Category {
	return s.filter(func(c core.Category) bool { return c.HasBudget() && !c.IsOverBudget() })
}

func (s *StatsService) WithBudget() []core.Category {
	return s.filter(core.Category.HasBudget)
}

func (s *StatsService) filter(keep func(core.Category) bool) []core.Category {
	s.ledger.mu.RLock()
	defer s.ledger.mu.RUnlock()
	var out []core.Category
	for _, c := range s.ledger.categories {
		if keep(c) {
			out = append(out, c)
		}
	}
	sortByName(out)
	return out
}

func sortByName(cats []core.Category) {
	sort.Slice(cats, func(i, j int) bool {
		a, b := strings.ToLower(cats[i].Name), strings.ToLower(cats[j].Name)
		if a != b {
			return a < b
		}
		return cats[i].ID < cats[j].ID
	})
}
