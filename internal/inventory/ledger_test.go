package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/ariefcatur/go-realtime-venue/internal/apperr"
	"github.com/ariefcatur/go-realtime-venue/internal/models"
	"github.com/ariefcatur/go-realtime-venue/internal/repository"
	"github.com/ariefcatur/go-realtime-venue/internal/testkit"
)

func menuItem(t *testing.T, env *testkit.Env, id string) models.MenuItem {
	t.Helper()
	m, err := env.Repos().Menu.Get(context.Background(), id)
	if err != nil || m == nil {
		t.Fatalf("get menu item: %v", err)
	}
	return *m
}

func decrement(env *testkit.Env, l *Ledger, lines ...Line) (map[string]models.MenuItem, error) {
	var out map[string]models.MenuItem
	err := env.Store.WithTx(context.Background(), func(r *repository.Repository) error {
		var err error
		out, err = l.DecrementTx(context.Background(), r, lines)
		return err
	})
	return out, err
}

func TestDecrementTx(t *testing.T) {
	env := testkit.NewEnv()
	l := NewLedger(env.Store, env.Log)
	beer := env.MenuItem(t, "beer", 3000, 5)
	chips := env.MenuItem(t, "chips", 1500, 2)

	items, err := decrement(env, l,
		Line{MenuItemID: beer.ID, Quantity: 2},
		Line{MenuItemID: chips.ID, Quantity: 1},
		Line{MenuItemID: chips.ID, Quantity: 1},
	)
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if items[beer.ID].Price != 3000 || items[chips.ID].Stock != 2 {
		t.Fatalf("snapshot = %+v", items)
	}
	if got := menuItem(t, env, beer.ID); got.Stock != 3 || got.Status != models.MenuOnSale {
		t.Fatalf("beer = %+v", got)
	}
	if got := menuItem(t, env, chips.ID); got.Stock != 0 || got.Status != models.MenuSoldOut {
		t.Fatalf("chips = %+v", got)
	}
}

func TestDecrementTxShortageChangesNothing(t *testing.T) {
	env := testkit.NewEnv()
	l := NewLedger(env.Store, env.Log)
	beer := env.MenuItem(t, "beer", 3000, 5)
	chips := env.MenuItem(t, "chips", 1500, 1)

	_, err := decrement(env, l,
		Line{MenuItemID: beer.ID, Quantity: 2},
		Line{MenuItemID: chips.ID, Quantity: 3},
	)
	if !errors.Is(err, apperr.InsufficientStock) {
		t.Fatalf("err = %v, want InsufficientStock", err)
	}
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("not an apperr: %v", err)
	}
	short, _ := ae.Details["items"].([]Shortage)
	if len(short) != 1 || short[0] != (Shortage{MenuItemID: chips.ID, Required: 3, Available: 1}) {
		t.Fatalf("details = %+v", ae.Details)
	}
	if got := menuItem(t, env, beer.ID); got.Stock != 5 {
		t.Fatalf("beer stock = %d, want untouched", got.Stock)
	}
}

func TestDecrementTxRejections(t *testing.T) {
	env := testkit.NewEnv()
	l := NewLedger(env.Store, env.Log)
	off := env.MenuItem(t, "seasonal", 2000, 10)
	if _, err := l.SetStock(context.Background(), off.ID, 10, models.MenuOffSale); err != nil {
		t.Fatalf("off sale: %v", err)
	}
	beer := env.MenuItem(t, "beer", 3000, 5)

	cases := []struct {
		name  string
		lines []Line
		want  apperr.Kind
	}{
		{"empty", nil, apperr.InvalidInput},
		{"zero qty", []Line{{MenuItemID: beer.ID}}, apperr.InvalidInput},
		{"missing", []Line{{MenuItemID: "nope", Quantity: 1}}, apperr.NotFound},
		{"off sale", []Line{{MenuItemID: off.ID, Quantity: 1}}, apperr.ItemNotOnSale},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := decrement(env, l, tc.lines...); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %s", err, tc.want)
			}
		})
	}
}

func TestRestockTx(t *testing.T) {
	ctx := context.Background()
	env := testkit.NewEnv()
	l := NewLedger(env.Store, env.Log)
	chips := env.MenuItem(t, "chips", 1500, 1)
	seasonal := env.MenuItem(t, "seasonal", 2000, 0)
	if _, err := l.SetStock(ctx, seasonal.ID, 0, models.MenuOffSale); err != nil {
		t.Fatalf("off sale: %v", err)
	}

	if _, err := decrement(env, l, Line{MenuItemID: chips.ID, Quantity: 1}); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	err := env.Store.WithTx(ctx, func(r *repository.Repository) error {
		return l.RestockTx(ctx, r, []Line{
			{MenuItemID: chips.ID, Quantity: 1},
			{MenuItemID: seasonal.ID, Quantity: 2},
			{MenuItemID: "deleted", Quantity: 1},
		})
	})
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	if got := menuItem(t, env, chips.ID); got.Stock != 1 || got.Status != models.MenuOnSale {
		t.Fatalf("chips = %+v", got)
	}
	if got := menuItem(t, env, seasonal.ID); got.Stock != 2 || got.Status != models.MenuOffSale {
		t.Fatalf("seasonal = %+v, OFF_SALE must stick", got)
	}
}

func TestSetStock(t *testing.T) {
	ctx := context.Background()
	env := testkit.NewEnv()
	l := NewLedger(env.Store, env.Log)
	beer := env.MenuItem(t, "beer", 3000, 5)

	cases := []struct {
		name       string
		stock      int
		status     models.MenuItemStatus
		wantStatus models.MenuItemStatus
		wantErr    apperr.Kind
	}{
		{"drain", 0, "", models.MenuSoldOut, ""},
		{"refill", 4, "", models.MenuOnSale, ""},
		{"pull", 4, models.MenuOffSale, models.MenuOffSale, ""},
		{"off sale survives refill", 9, "", models.MenuOffSale, ""},
		{"back on sale", 9, models.MenuOnSale, models.MenuOnSale, ""},
		{"negative", -1, "", "", apperr.InvalidInput},
		{"sold out is derived", 3, models.MenuSoldOut, "", apperr.InvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := l.SetStock(ctx, beer.ID, tc.stock, tc.status)
			if tc.wantErr != "" {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %s", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("set stock: %v", err)
			}
			if got.Stock != tc.stock || got.Status != tc.wantStatus {
				t.Fatalf("got %d/%s, want %d/%s", got.Stock, got.Status, tc.stock, tc.wantStatus)
			}
		})
	}

	if _, err := l.SetStock(ctx, "missing", 1, ""); !errors.Is(err, apperr.NotFound) {
		t.Fatalf("missing err = %v", err)
	}
}
