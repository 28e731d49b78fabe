// Package inventory owns menu stock. Every change runs inside the caller's
// transaction with the affected rows locked in id order, so concurrent orders
// over overlapping items cannot deadlock or oversell.
package inventory

import (
	"context"
	"sort"

	"github.com/ariefcatur/go-realtime-venue/internal/apperr"
	"github.com/ariefcatur/go-realtime-venue/internal/models"
	"github.com/ariefcatur/go-realtime-venue/internal/repository"
	"go.uber.org/zap"
)

type Line struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   int    `json:"quantity"`
}

// Shortage describes one line that could not be served.
type Shortage struct {
	MenuItemID string `json:"menu_item_id"`
	Required   int    `json:"required"`
	Available  int    `json:"available"`
}

type Ledger struct {
	Store repository.Store
	Log   *zap.Logger
}

func NewLedger(store repository.Store, log *zap.Logger) *Ledger {
	return &Ledger{Store: store, Log: log}
}

// merge folds repeated items into one line each, sorted by id.
func merge(lines []Line) ([]Line, error) {
	if len(lines) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "at least one line is required")
	}
	qty := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.MenuItemID == "" {
			return nil, apperr.New(apperr.InvalidInput, "menu_item_id is required")
		}
		if l.Quantity <= 0 {
			return nil, apperr.New(apperr.InvalidInput, "quantity for %s must be positive", l.MenuItemID)
		}
		qty[l.MenuItemID] += l.Quantity
	}
	out := make([]Line, 0, len(qty))
	for id, q := range qty {
		out = append(out, Line{MenuItemID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MenuItemID < out[j].MenuItemID })
	return out, nil
}

func ids(lines []Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.MenuItemID
	}
	return out
}

// DecrementTx takes every line from stock or nothing at all. It returns the
// items as they were before the decrement so callers can snapshot prices.
// Items that reach zero become SOLD_OUT.
func (l *Ledger) DecrementTx(ctx context.Context, r *repository.Repository, lines []Line) (map[string]models.MenuItem, error) {
	merged, err := merge(lines)
	if err != nil {
		return nil, err
	}
	rows, err := r.Menu.LockForUpdate(ctx, ids(merged))
	if err != nil {
		return nil, err
	}
	items := make(map[string]models.MenuItem, len(rows))
	for _, m := range rows {
		items[m.ID] = m
	}

	var short []Shortage
	for _, ln := range merged {
		m, ok := items[ln.MenuItemID]
		if !ok {
			return nil, apperr.New(apperr.NotFound, "menu item %s not found", ln.MenuItemID)
		}
		if m.Status == models.MenuOffSale {
			return nil, apperr.WithDetails(apperr.ItemNotOnSale, m.Name+" is not on sale",
				map[string]any{"menu_item_id": m.ID})
		}
		if m.Stock < ln.Quantity {
			short = append(short, Shortage{MenuItemID: m.ID, Required: ln.Quantity, Available: m.Stock})
		}
	}
	if len(short) > 0 {
		return nil, apperr.WithDetails(apperr.InsufficientStock, "not enough stock",
			map[string]any{"items": short})
	}

	for _, ln := range merged {
		m := items[ln.MenuItemID]
		stock := m.Stock - ln.Quantity
		status := m.Status
		if stock == 0 {
			status = models.MenuSoldOut
		}
		if err := r.Menu.UpdateStock(ctx, m.ID, stock, status); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// RestockTx returns lines to stock. SOLD_OUT items go back on sale; a manual
// OFF_SALE stays put. Items deleted since the order are skipped.
func (l *Ledger) RestockTx(ctx context.Context, r *repository.Repository, lines []Line) error {
	merged, err := merge(lines)
	if err != nil {
		return err
	}
	rows, err := r.Menu.LockForUpdate(ctx, ids(merged))
	if err != nil {
		return err
	}
	items := make(map[string]models.MenuItem, len(rows))
	for _, m := range rows {
		items[m.ID] = m
	}
	for _, ln := range merged {
		m, ok := items[ln.MenuItemID]
		if !ok {
			l.Log.Warn("restock skipped missing menu item", zap.String("menu_item_id", ln.MenuItemID), zap.Int("qty", ln.Quantity))
			continue
		}
		status := m.Status
		if status == models.MenuSoldOut {
			status = models.MenuOnSale
		}
		if err := r.Menu.UpdateStock(ctx, m.ID, m.Stock+ln.Quantity, status); err != nil {
			return err
		}
	}
	return nil
}

// SetStock is the back-office edit. An empty status keeps the current one;
// the SOLD_OUT flag then follows the new stock level.
func (l *Ledger) SetStock(ctx context.Context, id string, stock int, status models.MenuItemStatus) (*models.MenuItem, error) {
	if stock < 0 {
		return nil, apperr.New(apperr.InvalidInput, "stock must not be negative")
	}
	switch status {
	case "", models.MenuOnSale, models.MenuOffSale:
	default:
		return nil, apperr.New(apperr.InvalidInput, "status %s cannot be set manually", status)
	}

	var out *models.MenuItem
	err := l.Store.WithTx(ctx, func(r *repository.Repository) error {
		rows, err := r.Menu.LockForUpdate(ctx, []string{id})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return apperr.New(apperr.NotFound, "menu item %s not found", id)
		}
		m := rows[0]
		if status != "" {
			m.Status = status
		}
		switch {
		case m.Status == models.MenuOffSale:
		case stock == 0:
			m.Status = models.MenuSoldOut
		default:
			m.Status = models.MenuOnSale
		}
		m.Stock = stock
		if err := r.Menu.UpdateStock(ctx, m.ID, m.Stock, m.Status); err != nil {
			return err
		}
		out = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.Log.Info("stock set", zap.String("menu_item_id", id), zap.Int("stock", out.Stock), zap.String("status", string(out.Status)))
	return out, nil
}

func (l *Ledger) Get(ctx context.Context, id string) (*models.MenuItem, error) {
	m, err := l.Store.Repos().Menu.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperr.New(apperr.NotFound, "menu item %s not found", id)
	}
	return m, nil
}
