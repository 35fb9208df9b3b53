package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rewired-gh/cashcast/internal/models"
	"github.com/rewired-gh/cashcast/internal/storage"
	"github.com/shopspring/decimal"
)

// scheduleDTO carries the fields shared by expenses and revenue. PaymentDay is
// accepted for compatibility and ignored; dates drive the schedule.
type scheduleDTO struct {
	Amount      decimal.Decimal `json:"amount"`
	IsRecurring bool            `json:"isRecurring"`
	Frequency   string          `json:"frequency"`
	StartDate   string          `json:"startDate"`
	EndDate     *string         `json:"endDate"`
	PaymentDay  *int            `json:"paymentDay,omitempty"`
	Notes       string          `json:"notes"`
}

type expenseDTO struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Category    string           `json:"category"`
	Probability *decimal.Decimal `json:"probability,omitempty"`
	scheduleDTO
}

type revenueDTO struct {
	ID          string           `json:"id"`
	Source      string           `json:"source"`
	Probability *decimal.Decimal `json:"probability"`
	scheduleDTO
}

type entryCodec struct {
	kind     models.Kind
	path     string
	idPrefix string
	decode   func(r *http.Request) (*models.FinancialEntry, error)
	encode   func(e *models.FinancialEntry) any
}

var expenseCodec = &entryCodec{
	kind:     models.KindExpense,
	path:     "/expenses",
	idPrefix: "exp-",
	decode: func(r *http.Request) (*models.FinancialEntry, error) {
		var dto expenseDTO
		if err := decodeJSON(r, &dto); err != nil {
			return nil, err
		}
		e, err := dto.scheduleDTO.toEntry()
		if err != nil {
			return nil, err
		}
		e.ID, e.Kind, e.Name, e.Category = dto.ID, models.KindExpense, dto.Name, dto.Category
		e.Probability = nullProbability(dto.Probability)
		return e, nil
	},
	encode: func(e *models.FinancialEntry) any {
		dto := expenseDTO{
			ID:          e.ID,
			Name:        e.Name,
			Category:    e.Category,
			scheduleDTO: scheduleFrom(e),
		}
		if e.Probability.Valid {
			p := e.Probability.Decimal
			dto.Probability = &p
		}
		return dto
	},
}

var revenueCodec = &entryCodec{
	kind:     models.KindRevenue,
	path:     "/revenue",
	idPrefix: "rev-",
	decode: func(r *http.Request) (*models.FinancialEntry, error) {
		var dto revenueDTO
		if err := decodeJSON(r, &dto); err != nil {
			return nil, err
		}
		e, err := dto.scheduleDTO.toEntry()
		if err != nil {
			return nil, err
		}
		if dto.Probability == nil {
			return nil, &models.FieldError{Field: "probability", Reason: "is required"}
		}
		e.ID, e.Kind, e.Name = dto.ID, models.KindRevenue, dto.Source
		e.Probability = nullProbability(dto.Probability)
		return e, nil
	},
	encode: func(e *models.FinancialEntry) any {
		p := e.EffectiveProbability()
		return revenueDTO{
			ID:          e.ID,
			Source:      e.Name,
			Probability: &p,
			scheduleDTO: scheduleFrom(e),
		}
	},
}

func (d scheduleDTO) toEntry() (*models.FinancialEntry, error) {
	rec := models.OneTime
	if d.IsRecurring {
		rec = models.Recurrence(d.Frequency)
		if !rec.Valid() || rec == models.OneTime {
			return nil, &models.FieldError{Field: "frequency", Reason: fmt.Sprintf("unsupported value %q", d.Frequency)}
		}
	}
	if d.StartDate == "" {
		return nil, &models.FieldError{Field: "startDate", Reason: "is required"}
	}
	start, err := models.ParseDate(d.StartDate)
	if err != nil {
		return nil, &models.FieldError{Field: "startDate", Reason: err.Error()}
	}
	e := &models.FinancialEntry{
		Amount:     d.Amount,
		Recurrence: rec,
		StartDate:  start,
		Notes:      d.Notes,
	}
	if d.EndDate != nil && *d.EndDate != "" {
		end, err := models.ParseDate(*d.EndDate)
		if err != nil {
			return nil, &models.FieldError{Field: "endDate", Reason: err.Error()}
		}
		e.EndDate = &end
	}
	return e, nil
}

func scheduleFrom(e *models.FinancialEntry) scheduleDTO {
	d := scheduleDTO{
		Amount:      e.Amount,
		IsRecurring: e.Recurrence != models.OneTime,
		Frequency:   string(e.Recurrence),
		StartDate:   e.StartDate.Format(models.DateLayout),
		Notes:       e.Notes,
	}
	if e.EndDate != nil {
		end := e.EndDate.Format(models.DateLayout)
		d.EndDate = &end
	}
	return d
}

func nullProbability(p *decimal.Decimal) decimal.NullDecimal {
	if p == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*p)
}

func (s *Server) listEntries(c *entryCodec) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := s.store.ListEntriesByKind(c.kind)
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]any, 0, len(entries))
		for i := range entries {
			out = append(out, c.encode(&entries[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// lookup loads the entry named in the route, treating an entry of the other
// kind as missing.
func (s *Server) lookup(c *entryCodec, r *http.Request) (*models.FinancialEntry, error) {
	id := mux.Vars(r)["id"]
	e, err := s.store.GetEntry(id)
	if err != nil {
		return nil, err
	}
	if e.Kind != c.kind {
		return nil, fmt.Errorf("%s %s: %w", c.kind, id, storage.ErrNotFound)
	}
	return e, nil
}

func (s *Server) getEntry(c *entryCodec) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := s.lookup(c, r)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c.encode(e))
	}
}

func (s *Server) createEntry(c *entryCodec) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := c.decode(r)
		if err != nil {
			writeError(w, err)
			return
		}
		if e.ID == "" {
			e.ID = s.newID(c.idPrefix)
		}
		if err := s.store.AddEntry(e); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, c.encode(e))
	}
}

func (s *Server) updateEntry(c *entryCodec) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		existing, err := s.lookup(c, r)
		if err != nil {
			writeError(w, err)
			return
		}
		e, err := c.decode(r)
		if err != nil {
			writeError(w, err)
			return
		}
		e.ID = existing.ID
		if err := s.store.UpdateEntry(e); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c.encode(e))
	}
}

func (s *Server) deleteEntry(c *entryCodec) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := s.lookup(c, r)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := s.store.DeleteEntry(e.ID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("%s deleted successfully", c.kind)})
	}
}
