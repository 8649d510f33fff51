package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"spendlens/internal/core"
	"spendlens/internal/currency"
	"spendlens/internal/filter"
)

const maxBodyBytes = 1 << 20

var errMalformedBody = fmt.Errorf("%w: malformed request body", core.ErrValidation)

// decodeJSON reads one JSON document from the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errMalformedBody)
		}
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return nil
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type expenseRequest struct {
	Title       string          `json:"title"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	Category    core.Category   `json:"category"`
	Description string          `json:"description"`
	Tags        []core.Tag      `json:"tags"`
	Frequency   core.Frequency  `json:"frequency"`
	Priority    core.Priority   `json:"priority"`
}

// expense converts the request body. A blank date is left for the store to
// default; anything else must parse.
func (req expenseRequest) expense(id string) (core.Expense, error) {
	date, err := parseDateParam(req.Date)
	if err != nil {
		return core.Expense{}, err
	}
	return core.Expense{
		ID:          id,
		Title:       sanitizeInput(req.Title),
		Amount:      req.Amount,
		Date:        date,
		Category:    req.Category,
		Description: sanitizeInput(req.Description),
		Tags:        req.Tags,
		Frequency:   req.Frequency,
		Priority:    req.Priority,
	}, nil
}

type goalRequest struct {
	Title         string          `json:"title"`
	TargetAmount  decimal.Decimal `json:"targetAmount"`
	CurrentAmount decimal.Decimal `json:"currentAmount"`
	TargetDate    string          `json:"targetDate"`
	Description   string          `json:"description"`
}

func (req goalRequest) goal(id string) (core.Goal, error) {
	target, err := parseDateParam(req.TargetDate)
	if err != nil {
		return core.Goal{}, err
	}
	return core.Goal{
		ID:            id,
		Title:         sanitizeInput(req.Title),
		TargetAmount:  req.TargetAmount,
		CurrentAmount: req.CurrentAmount,
		TargetDate:    target,
		Description:   sanitizeInput(req.Description),
	}, nil
}

type settingsRequest struct {
	MonthlyBudget decimal.Decimal `json:"monthlyBudget"`
	Currency      currency.Code   `json:"currency"`
	Confirm       bool            `json:"confirm"`
}

// ParseCriteria reads filter criteria from query parameters: search,
// category, tags (comma separated or repeated), priority, minAmount,
// maxAmount, startDate and endDate. Absent parameters are wildcards.
func ParseCriteria(q url.Values) (filter.Criteria, error) {
	c := filter.Criteria{Search: sanitizeInput(q.Get("search"))}

	if v := strings.TrimSpace(q.Get("category")); v != "" && v != core.Wildcard {
		c.Category = core.Category(v)
		if !c.Category.Valid() {
			return filter.Criteria{}, core.ErrUnknownCategory
		}
	}
	if v := strings.TrimSpace(q.Get("priority")); v != "" && v != core.Wildcard {
		c.Priority = core.Priority(v)
		if !c.Priority.Valid() {
			return filter.Criteria{}, core.ErrUnknownPriority
		}
	}
	for _, raw := range q["tags"] {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t == "" {
				continue
			}
			tag := core.Tag(t)
			if !tag.Valid() {
				return filter.Criteria{}, core.ErrUnknownTag
			}
			c.Tags = append(c.Tags, tag)
		}
	}

	var err error
	if c.MinAmount, err = parseBound(q.Get("minAmount")); err != nil {
		return filter.Criteria{}, err
	}
	if c.MaxAmount, err = parseBound(q.Get("maxAmount")); err != nil {
		return filter.Criteria{}, err
	}
	if c.StartDate, err = parseDateParam(q.Get("startDate")); err != nil {
		return filter.Criteria{}, err
	}
	if c.EndDate, err = parseDateParam(q.Get("endDate")); err != nil {
		return filter.Criteria{}, err
	}
	return c, nil
}

func parseBound(s string) (decimal.NullDecimal, error) {
	if s = strings.TrimSpace(s); s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%w: invalid amount bound %q", core.ErrValidation, s)
	}
	return decimal.NewNullDecimal(d), nil
}

func parseDateParam(s string) (core.Date, error) {
	if s = strings.TrimSpace(s); s == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}, fmt.Errorf("%w: invalid date %q", core.ErrValidation, s)
	}
	return d, nil
}
