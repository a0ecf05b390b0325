// This file holds the parsing of query strings and request bodies shared by
// the handlers.

package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fatture/internal/api"
	"fatture/internal/core"
	"fatture/internal/period"
	"fatture/internal/services"
)

const maxBodyBytes = 1 << 20

// parseAsOf reads an as_of=YYYY-MM-DD parameter, defaulting to today.
func parseAsOf(q url.Values, now time.Time) (time.Time, error) {
	v := strings.TrimSpace(q.Get("as_of"))
	if v == "" {
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, &core.ValidationError{Field: "as_of", Value: v, Message: "expected YYYY-MM-DD"}
	}
	return t, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// ParseDashboardParams reads granularity, as_of and current from the query.
func ParseDashboardParams(q url.Values, now time.Time) (services.DashboardRequest, error) {
	g, err := period.ParseGranularity(q.Get("granularity"))
	if err != nil {
		return services.DashboardRequest{}, err
	}
	asOf, err := parseAsOf(q, now)
	if err != nil {
		return services.DashboardRequest{}, err
	}
	return services.DashboardRequest{
		Granularity:       g,
		AsOf:              asOf,
		CurrentPeriodOnly: parseBool(q.Get("current")),
	}, nil
}

// ParseScopeParams reads an invoice listing scope; an empty or "all"
// granularity selects every invoice.
func ParseScopeParams(q url.Values, now time.Time) (services.Scope, error) {
	asOf, err := parseAsOf(q, now)
	if err != nil {
		return services.Scope{}, err
	}
	raw := strings.TrimSpace(q.Get("granularity"))
	if raw == "" || strings.EqualFold(raw, "all") {
		return services.Scope{AsOf: asOf}, nil
	}
	g, err := period.ParseGranularity(raw)
	if err != nil {
		return services.Scope{}, err
	}
	return services.Scope{Granularity: g, AsOf: asOf}, nil
}

// ParseSettingsUpdate reads the settings form. Amounts accept a comma or dot separator.
func ParseSettingsUpdate(p *RequestBodyParser) (api.SettingsUpdate, error) {
	upd := api.SettingsUpdate{
		Name:  p.Get("name"),
		Email: p.Get("email"),
	}

	if v := p.Get("tax_down_payment_percentage"); v != "" {
		pct, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64)
		if err != nil {
			return api.SettingsUpdate{}, &core.ValidationError{Field: "tax_down_payment_percentage", Value: v, Message: "not a number"}
		}
		upd.TaxDownPaymentPercentage = pct
	}

	if v := p.Get("monthly_social_security"); v != "" {
		cents, err := core.ParseAmount(v)
		if err != nil {
			return api.SettingsUpdate{}, &core.ValidationError{Field: "monthly_social_security", Value: v, Message: "not an amount", Err: core.ErrInvalidAmount}
		}
		upd.MonthlySocialSecurity = core.Money{Cents: cents}
	}
	return upd, nil
}

// RequestBodyParser reads a JSON or form-encoded body once, as sent by HTMX
// forms and by scripts posting JSON.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	return p
}

// Parse decodes the body as JSON when it looks like JSON, as a form otherwise.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' || strings.HasPrefix(p.contentType, "application/json") {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns the sanitized value of key from the parsed body.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// GetRaw returns key without sanitizing, for secrets such as passwords.
func (p *RequestBodyParser) GetRaw(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return stringValue(val)
		}
	}
	if p.formData != nil {
		return p.formData.Get(key)
	}
	return ""
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
