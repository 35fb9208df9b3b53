package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rewired-gh/cashcast/internal/models"
	"github.com/shopspring/decimal"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(100, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testEntry(id string, kind models.Kind, start time.Time) *models.FinancialEntry {
	return &models.FinancialEntry{
		ID:         id,
		Kind:       kind,
		Name:       "Test " + id,
		Category:   "Utilities",
		Amount:     decimal.RequireFromString("123.45"),
		Recurrence: models.Monthly,
		StartDate:  start,
	}
}

func TestStorage_AddAndGetEntry(t *testing.T) {
	s := newTestStorage(t)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	e := testEntry("rev-1", models.KindRevenue, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	e.Probability = decimal.NewNullDecimal(decimal.RequireFromString("87.5"))
	e.EndDate = &end
	e.Notes = "quarterly client"

	if err := s.AddEntry(e); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if e.CreatedAt.IsZero() {
		t.Error("AddEntry did not stamp CreatedAt")
	}

	got, err := s.GetEntry("rev-1")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if got.Kind != models.KindRevenue || got.Name != e.Name || got.Category != "Utilities" || got.Notes != e.Notes {
		t.Errorf("metadata mismatch: %+v", got)
	}
	if !got.Amount.Equal(e.Amount) {
		t.Errorf("amount = %s, want %s", got.Amount, e.Amount)
	}
	if !got.Probability.Valid || !got.Probability.Decimal.Equal(decimal.RequireFromString("87.5")) {
		t.Errorf("probability = %+v, want 87.5", got.Probability)
	}
	if !got.StartDate.Equal(e.StartDate) {
		t.Errorf("start date = %v, want %v", got.StartDate, e.StartDate)
	}
	if got.EndDate == nil || !got.EndDate.Equal(end) {
		t.Errorf("end date = %v, want %v", got.EndDate, end)
	}
}

func TestStorage_NullableFieldsRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	e := testEntry("exp-1", models.KindExpense, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if err := s.AddEntry(e); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	got, err := s.GetEntry("exp-1")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if got.Probability.Valid {
		t.Errorf("probability should be unset, got %s", got.Probability.Decimal)
	}
	if got.EndDate != nil {
		t.Errorf("end date should be nil, got %v", got.EndDate)
	}
}

func TestStorage_AddEntry_Invalid(t *testing.T) {
	s := newTestStorage(t)
	e := testEntry("exp-1", models.KindExpense, time.Now())
	e.Amount = decimal.NewFromInt(-1)
	err := s.AddEntry(e)
	var fe *models.FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FieldError, got %v", err)
	}
}

func TestStorage_GetEntry_NotFound(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.GetEntry("nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStorage_AddEntry_Duplicate(t *testing.T) {
	s := newTestStorage(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.AddEntry(testEntry("exp-1", models.KindExpense, start)); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	err := s.AddEntry(testEntry("exp-1", models.KindExpense, start))
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestStorage_UpdateEntry(t *testing.T) {
	s := newTestStorage(t)
	e := testEntry("exp-1", models.KindExpense, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if err := s.AddEntry(e); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	created := e.CreatedAt

	e.Name = "Updated"
	e.Amount = decimal.NewFromInt(99)
	e.Recurrence = models.Weekly
	if err := s.UpdateEntry(e); err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}
	got, _ := s.GetEntry("exp-1")
	if got.Name != "Updated" {
		t.Errorf("name not updated: got %q", got.Name)
	}
	if !got.Amount.Equal(decimal.NewFromInt(99)) {
		t.Errorf("amount not updated: got %s", got.Amount)
	}
	if got.Recurrence != models.Weekly {
		t.Errorf("recurrence not updated: got %s", got.Recurrence)
	}
	if got.CreatedAt.UnixNano() != created.UnixNano() {
		t.Errorf("created at changed: %v -> %v", created, got.CreatedAt)
	}
}

func TestStorage_UpdateEntry_NotFound(t *testing.T) {
	s := newTestStorage(t)
	e := testEntry("ghost", models.KindExpense, time.Now())
	if err := s.UpdateEntry(e); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStorage_DeleteEntry(t *testing.T) {
	s := newTestStorage(t)
	if err := s.AddEntry(testEntry("exp-1", models.KindExpense, time.Now())); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := s.DeleteEntry("exp-1"); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if _, err := s.GetEntry("exp-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("entry still present after delete: %v", err)
	}
	if err := s.DeleteEntry("exp-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestStorage_ListEntries(t *testing.T) {
	s := newTestStorage(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := s.AddEntry(testEntry(fmt.Sprintf("exp-%d", i), models.KindExpense, base.AddDate(0, 0, 2-i))); err != nil {
			t.Fatalf("AddEntry: %v", err)
		}
	}
	if err := s.AddEntry(testEntry("rev-0", models.KindRevenue, base)); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}

	all, err := s.ListEntries()
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("got %d entries, want 4", len(all))
	}
	if all[0].ID != "exp-2" {
		t.Errorf("entries not ordered by start date: first is %s", all[0].ID)
	}

	revenue, err := s.ListEntriesByKind(models.KindRevenue)
	if err != nil {
		t.Fatalf("ListEntriesByKind: %v", err)
	}
	if len(revenue) != 1 || revenue[0].ID != "rev-0" {
		t.Errorf("unexpected revenue entries: %+v", revenue)
	}
}

func TestStorage_ListEntries_EmptyIsNotNil(t *testing.T) {
	s := newTestStorage(t)
	entries, err := s.ListEntries()
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if entries == nil {
		t.Error("expected empty slice, got nil")
	}
}

func TestStorage_EntryLimit(t *testing.T) {
	s, err := New(2, ":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	for i := 0; i < 2; i++ {
		if err := s.AddEntry(testEntry(fmt.Sprintf("exp-%d", i), models.KindExpense, time.Now())); err != nil {
			t.Fatalf("AddEntry: %v", err)
		}
	}
	err = s.AddEntry(testEntry("exp-2", models.KindExpense, time.Now()))
	if !errors.Is(err, ErrEntryLimit) {
		t.Errorf("expected ErrEntryLimit, got %v", err)
	}
}

func TestStorage_Settings(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.GetSettings(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before seeding, got %v", err)
	}

	if err := s.EnsureSettings(models.DefaultSettings()); err != nil {
		t.Fatalf("EnsureSettings: %v", err)
	}
	st, err := s.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if st.DefaultForecastWeeks != 8 || st.Currency != "USD" {
		t.Errorf("unexpected defaults: %+v", st)
	}

	st.LowBalanceThreshold = decimal.RequireFromString("250.75")
	st.CurrentBalance = decimal.RequireFromString("-40.10")
	st.DefaultForecastWeeks = 12
	if err := s.SaveSettings(st); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	// Seeding again must not overwrite saved values.
	if err := s.EnsureSettings(models.DefaultSettings()); err != nil {
		t.Fatalf("EnsureSettings: %v", err)
	}
	got, err := s.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if got.DefaultForecastWeeks != 12 {
		t.Errorf("weeks = %d, want 12", got.DefaultForecastWeeks)
	}
	if !got.LowBalanceThreshold.Equal(decimal.RequireFromString("250.75")) {
		t.Errorf("threshold = %s", got.LowBalanceThreshold)
	}
	if !got.CurrentBalance.Equal(decimal.RequireFromString("-40.10")) {
		t.Errorf("balance = %s", got.CurrentBalance)
	}
}

func TestStorage_SaveSettings_Invalid(t *testing.T) {
	s := newTestStorage(t)
	st := models.DefaultSettings()
	st.DefaultForecastWeeks = 0
	if err := s.SaveSettings(&st); err == nil {
		t.Error("expected error for invalid settings")
	}
}

func testAlert(id string, detected time.Time) *models.Alert {
	return &models.Alert{
		ID:             id,
		DetectedAt:     detected,
		ForecastStart:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		LowestBalance:  decimal.NewFromInt(-200),
		Threshold:      decimal.NewFromInt(100),
		FirstLowPeriod: 3,
		FirstLowDate:   time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		LowPeriodCount: 2,
	}
}

func TestStorage_Alerts(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()

	if _, err := s.LatestNotifiedAlert(); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound with no alerts, got %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.AddAlert(testAlert(fmt.Sprintf("a-%d", i), now.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("AddAlert: %v", err)
		}
	}
	alerts, err := s.RecentAlerts(2)
	if err != nil {
		t.Fatalf("RecentAlerts: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("got %d alerts, want 2", len(alerts))
	}
	if alerts[0].ID != "a-2" {
		t.Errorf("newest alert = %s, want a-2", alerts[0].ID)
	}
	if !alerts[0].LowestBalance.Equal(decimal.NewFromInt(-200)) || alerts[0].FirstLowPeriod != 3 {
		t.Errorf("alert fields not round-tripped: %+v", alerts[0])
	}

	if err := s.MarkAlertNotified("a-1"); err != nil {
		t.Fatalf("MarkAlertNotified: %v", err)
	}
	latest, err := s.LatestNotifiedAlert()
	if err != nil {
		t.Fatalf("LatestNotifiedAlert: %v", err)
	}
	if latest.ID != "a-1" || !latest.Notified {
		t.Errorf("latest notified = %+v, want a-1", latest)
	}
	if err := s.MarkAlertNotified("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
