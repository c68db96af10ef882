package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
)

func TestOperationStoreCreate(t *testing.T) {
	ctx := context.Background()
	limit := int64(5000000)
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO operations") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 9 {
				t.Fatalf("expected 9 args, got %d", len(args))
			}
			if args[0] != "op-1" || args[1] != "user-1" || args[2] != "LIMIT_BUY" || args[3] != "PENDING" {
				t.Fatalf("unexpected args: %#v", args)
			}
			if args[4] != int64(100000) || args[5] != int64(0) {
				t.Fatalf("unexpected amounts: %#v", args)
			}
			if ptr, ok := args[7].(*int64); !ok || *ptr != limit {
				t.Fatalf("unexpected limit price arg: %#v", args[7])
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewOperationStore(stubDB{})
	err := store.Create(ctx, execer, OperationInput{
		ID:         "op-1",
		UserID:     "user-1",
		Type:       OpLimitBuy,
		Status:     OpPending,
		CashAmount: 100000,
		LimitPrice: &limit,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOperationStoreMarkExecutedGuardsOnPending(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "status = 'EXECUTED'") || !strings.Contains(query, "AND status = 'PENDING'") {
				t.Fatalf("transition must be guarded on PENDING: %s", query)
			}
			if len(args) != 4 || args[3] != "op-1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 0}, nil
		},
	}
	store := NewOperationStore(stubDB{})
	affected, err := store.MarkExecuted(ctx, execer, "op-1", 100000, 2000000, 5000000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if affected != 0 {
		t.Fatalf("expected guard miss to report 0 rows, got %d", affected)
	}
}

func TestOperationStoreMarkTerminated(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "cancellation_reason = $2") || !strings.Contains(query, "AND status = 'PENDING'") {
				t.Fatalf("unexpected query: %s", query)
			}
			if args[0] != "CANCELLED" || args[1] != "cancelled by user" || args[2] != "op-1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewOperationStore(stubDB{})
	affected, err := store.MarkTerminated(ctx, execer, "op-1", OpCancelled, "cancelled by user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 affected row, got %d", affected)
	}
}

func TestOperationStoreListPendingLimitOrders(t *testing.T) {
	ctx := context.Background()
	store := NewOperationStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "status = 'PENDING'") || !strings.Contains(query, "'LIMIT_BUY', 'LIMIT_SELL'") {
				t.Fatalf("unexpected query: %s", query)
			}
			if !strings.Contains(query, "ORDER BY created_at ASC") {
				t.Fatalf("pending orders must scan oldest first: %s", query)
			}
			*dest.(*[]Operation) = []Operation{{ID: "op-1", Type: OpLimitBuy}}
			return nil
		},
	})
	rows, err := store.ListPendingLimitOrders(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "op-1" {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}

func TestOperationStoreListByUserFilters(t *testing.T) {
	ctx := context.Background()
	store := NewOperationStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "AND type = $2") || !strings.Contains(query, "AND status = $3") {
				t.Fatalf("unexpected query: %s", query)
			}
			if !strings.Contains(query, "LIMIT $4 OFFSET $5") {
				t.Fatalf("unexpected pagination clause: %s", query)
			}
			if len(args) != 5 || args[0] != "user-1" || args[1] != "DCA_BUY" || args[2] != "EXECUTED" || args[3] != 20 || args[4] != 40 {
				t.Fatalf("unexpected args: %#v", args)
			}
			return nil
		},
	})
	if _, err := store.ListByUser(ctx, "user-1", OpDCABuy, OpExecuted, 20, 40); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOperationStoreListByUserNoFilters(t *testing.T) {
	ctx := context.Background()
	store := NewOperationStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if strings.Contains(query, "AND type") || strings.Contains(query, "AND status") {
				t.Fatalf("filters must be omitted when empty: %s", query)
			}
			if !strings.Contains(query, "LIMIT $2 OFFSET $3") {
				t.Fatalf("unexpected pagination clause: %s", query)
			}
			if len(args) != 3 || args[0] != "user-1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			return nil
		},
	})
	if _, err := store.ListByUser(ctx, "user-1", "", "", 50, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOperationStoreSumPendingReservations(t *testing.T) {
	ctx := context.Background()
	store := NewOperationStore(stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if args[0] != "user-1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			switch {
			case strings.Contains(query, "'LIMIT_BUY'"):
				*dest.(*int64) = 400000
			case strings.Contains(query, "'LIMIT_SELL'"):
				*dest.(*int64) = 30000000
			default:
				t.Fatalf("unexpected query: %s", query)
			}
			return nil
		},
	})
	cash, crypto, err := store.SumPendingReservations(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cash != 400000 || crypto != 30000000 {
		t.Fatalf("unexpected sums: cash=%d crypto=%d", cash, crypto)
	}
}
