package match

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCompareExactIdentifier(t *testing.T) {
	cases := []struct {
		name       string
		paymentIDs []string
		linkedIDs  []string
		wantPoints int
		wantID     string
	}{
		{
			name:       "hit on payment intent",
			paymentIDs: []string{"pi_123"},
			linkedIDs:  []string{"pi_999", "pi_123"},
			wantPoints: 100,
			wantID:     "pi_123",
		},
		{
			name:       "hit on secondary identifier",
			paymentIDs: []string{"pi_123", "SQTX42"},
			linkedIDs:  []string{"SQTX42"},
			wantPoints: 100,
			wantID:     "SQTX42",
		},
		{
			name:       "no overlap",
			paymentIDs: []string{"pi_123"},
			linkedIDs:  []string{"pi_456"},
			wantPoints: 0,
		},
		{
			name:       "empty identifiers never match",
			paymentIDs: []string{""},
			linkedIDs:  []string{""},
			wantPoints: 0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			points, id := compareExactIdentifier(tc.paymentIDs, tc.linkedIDs, 100)
			if points != tc.wantPoints {
				t.Fatalf("expected %d points, got %d", tc.wantPoints, points)
			}
			if id != tc.wantID {
				t.Fatalf("expected matched id %q, got %q", tc.wantID, id)
			}
		})
	}
}

func TestCompareAmount(t *testing.T) {
	a := decimal.RequireFromString("2360.43")
	b := decimal.RequireFromString("2360.43")

	if got := compareAmount(a, b, 0, 40); got != 40 {
		t.Fatalf("expected 40 for equal amounts, got %d", got)
	}
	if got := compareAmount(a, decimal.RequireFromString("2360.44"), 0, 40); got != 0 {
		t.Fatalf("expected 0 for off-by-a-cent with zero tolerance, got %d", got)
	}
	if got := compareAmount(a, decimal.RequireFromString("2360.44"), 1, 40); got != 40 {
		t.Fatalf("expected 40 within one cent tolerance, got %d", got)
	}
	if got := compareAmount(decimal.Zero, decimal.Zero, 0, 40); got != 0 {
		t.Fatalf("expected 0 for two zero amounts, got %d", got)
	}
}

func TestCompareEmail(t *testing.T) {
	if got := compareEmail("Jane.Doe@Example.COM", " jane.doe@example.com ", 40); got != 40 {
		t.Fatalf("expected case-insensitive match worth 40, got %d", got)
	}
	if got := compareEmail("jane@example.com", "john@example.com", 40); got != 0 {
		t.Fatalf("expected 0 for different emails, got %d", got)
	}
	if got := compareEmail("", "jane@example.com", 40); got != 0 {
		t.Fatalf("expected 0 for empty email, got %d", got)
	}
}

func TestCompareDateProximity(t *testing.T) {
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	window := 24 * time.Hour

	if got := compareDateProximity(base, base, window, 20); got != 20 {
		t.Fatalf("expected full 20 points for identical timestamps, got %d", got)
	}
	if got := compareDateProximity(base, base.Add(12*time.Hour), window, 20); got != 10 {
		t.Fatalf("expected 10 points at half window, got %d", got)
	}
	if got := compareDateProximity(base, base.Add(-12*time.Hour), window, 20); got != 10 {
		t.Fatalf("expected symmetric decay, got %d", got)
	}
	if got := compareDateProximity(base, base.Add(25*time.Hour), window, 20); got != 0 {
		t.Fatalf("expected 0 outside the window, got %d", got)
	}
	if got := compareDateProximity(time.Time{}, base, window, 20); got != 0 {
		t.Fatalf("expected 0 for zero timestamp, got %d", got)
	}
}

func TestCompareName(t *testing.T) {
	if got := compareName("Jane Doe", "Jane Doe", 10); got != 10 {
		t.Fatalf("expected full weight for identical names, got %d", got)
	}
	if got := compareName("Jane  Doe ", "jane doe", 10); got != 10 {
		t.Fatalf("expected whitespace and case to be normalized, got %d", got)
	}
	if got := compareName("Jane Doe", "Bob Smith", 10); got != 0 {
		t.Fatalf("expected 0 below the similarity threshold, got %d", got)
	}
	if got := compareName("", "Jane Doe", 10); got != 0 {
		t.Fatalf("expected 0 for empty name, got %d", got)
	}
}
