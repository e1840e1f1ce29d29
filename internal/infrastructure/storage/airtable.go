package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"ideadigest/internal/domain"
	"ideadigest/internal/ports"
)

const (
	airtableAPIBase = "https://api.airtable.com/v0"

	// Airtable allows 5 requests per second; 250ms keeps us under it.
	airtableRequestDelay = 250 * time.Millisecond

	airtablePageSize   = 100
	airtableDeleteSize = 10
)

// Airtable stores items in a hosted Airtable base. Useful for browsing
// the collected ideas in a spreadsheet UI; the free tier caps the table
// at roughly 1,200 records, which is what EnforceCeiling protects.
type Airtable struct {
	apiKey  string
	baseID  string
	table   string
	baseURL string
	client  *http.Client

	requestDelay time.Duration
	lastRequest  time.Time
}

var _ ports.Storage = (*Airtable)(nil)

// NewAirtable wires the REST client. baseURL is overridable for tests;
// pass "" for the real API.
func NewAirtable(apiKey, baseID, table, baseURL string, timeout time.Duration) *Airtable {
	if baseURL == "" {
		baseURL = airtableAPIBase
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Airtable{
		apiKey:       apiKey,
		baseID:       baseID,
		table:        table,
		baseURL:      baseURL,
		client:       &http.Client{Timeout: timeout},
		requestDelay: airtableRequestDelay,
	}
}

// Name identifies the backend in logs and summaries.
func (a *Airtable) Name() string {
	return "airtable"
}

func (a *Airtable) tableURL() string {
	return fmt.Sprintf("%s/%s/%s", a.baseURL, a.baseID, url.PathEscape(a.table))
}

// rateLimit spaces requests to respect the per-second quota. Writes are
// issued one at a time, so a dedup key never has two writes in flight.
func (a *Airtable) rateLimit() {
	if a.requestDelay <= 0 {
		return
	}
	if elapsed := time.Since(a.lastRequest); elapsed < a.requestDelay {
		time.Sleep(a.requestDelay - elapsed)
	}
	a.lastRequest = time.Now()
}

type airtableRecord struct {
	ID     string                 `json:"id,omitempty"`
	Fields map[string]interface{} `json:"fields"`
}

type airtablePage struct {
	Records []airtableRecord `json:"records"`
	Offset  string           `json:"offset,omitempty"`
}

// UpsertItems finds each record by dedup key, then creates, patches or
// skips it. Each item is isolated: one API failure never aborts the
// batch.
func (a *Airtable) UpsertItems(ctx context.Context, items []domain.Item) ports.UpsertResult {
	var result ports.UpsertResult

	for _, item := range items {
		if err := item.Validate(); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err.Error())
			continue
		}

		recordID, existing, found, err := a.findByKey(ctx, item.Key())
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("lookup %s: %v", item.Key(), err))
			continue
		}

		switch {
		case !found:
			if err := a.createRecord(ctx, item); err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("insert %s: %v", item.Key(), err))
				continue
			}
			result.Inserted++
		case existing.ContentEquals(item):
			result.Unchanged++
		default:
			if err := a.updateRecord(ctx, recordID, item); err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("update %s: %v", item.Key(), err))
				continue
			}
			result.Updated++
		}
	}
	return result
}

func (a *Airtable) findByKey(ctx context.Context, key string) (string, domain.Item, bool, error) {
	params := url.Values{}
	params.Set("filterByFormula", fmt.Sprintf("{unique_key}='%s'", key))
	params.Set("maxRecords", "1")

	var page airtablePage
	if err := a.do(ctx, http.MethodGet, a.tableURL()+"?"+params.Encode(), nil, &page); err != nil {
		return "", domain.Item{}, false, err
	}
	if len(page.Records) == 0 {
		return "", domain.Item{}, false, nil
	}
	record := page.Records[0]
	return record.ID, recordToItem(record), true, nil
}

func (a *Airtable) createRecord(ctx context.Context, item domain.Item) error {
	payload := map[string]interface{}{"fields": itemToFields(item)}
	return a.do(ctx, http.MethodPost, a.tableURL(), payload, nil)
}

func (a *Airtable) updateRecord(ctx context.Context, recordID string, item domain.Item) error {
	payload := map[string]interface{}{"fields": itemToFields(item)}
	return a.do(ctx, http.MethodPatch, a.tableURL()+"/"+recordID, payload, nil)
}

// QueryItems lists records sorted by score, then filters locally; the
// record volume is bounded by the free-tier ceiling, so client-side
// narrowing is cheap.
func (a *Airtable) QueryItems(ctx context.Context, opts ports.QueryOptions) ([]domain.Item, error) {
	records, err := a.listRecords(ctx, "", "score", "desc", 0)
	if err != nil {
		return nil, err
	}

	sourceSet := map[string]bool{}
	for _, s := range opts.Sources {
		sourceSet[s] = true
	}

	var items []domain.Item
	for _, record := range records {
		item := recordToItem(record)
		if item.SourceName == "" {
			continue
		}
		if !opts.Since.IsZero() && item.SourceDate.Before(opts.Since) {
			continue
		}
		if !opts.Until.IsZero() && !item.SourceDate.Before(opts.Until) {
			continue
		}
		if len(sourceSet) > 0 && !sourceSet[item.SourceName] {
			continue
		}
		if item.Score < opts.MinScore {
			continue
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].Key() < items[j].Key()
	})
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items, nil
}

// Cleanup batch-deletes records whose source date is older than the
// retention window.
func (a *Airtable) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	records, err := a.listRecords(ctx, "", "", "", 0)
	if err != nil {
		return 0, err
	}

	var stale []string
	for _, record := range records {
		item := recordToItem(record)
		if !item.SourceDate.IsZero() && item.SourceDate.Before(cutoff) {
			stale = append(stale, record.ID)
		}
	}
	return a.deleteRecords(ctx, stale)
}

// EnforceCeiling deletes oldest records first until 10% under the
// ceiling.
func (a *Airtable) EnforceCeiling(ctx context.Context, maxRecords int) (int, error) {
	if maxRecords < 1 {
		return 0, nil
	}

	records, err := a.listRecords(ctx, "", "", "", 0)
	if err != nil {
		return 0, err
	}
	if len(records) <= maxRecords {
		return 0, nil
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, b := recordToItem(records[i]), recordToItem(records[j])
		if !a.SourceDate.Equal(b.SourceDate) {
			return a.SourceDate.Before(b.SourceDate)
		}
		return a.Key() < b.Key()
	})

	target := maxRecords * 9 / 10
	excess := len(records) - target
	ids := make([]string, 0, excess)
	for _, record := range records[:excess] {
		ids = append(ids, record.ID)
	}
	return a.deleteRecords(ctx, ids)
}

// Stats lists all records and summarizes them; read-only.
func (a *Airtable) Stats(ctx context.Context) (ports.StorageStats, error) {
	stats := ports.StorageStats{BySource: map[string]int{}}

	records, err := a.listRecords(ctx, "", "", "", 0)
	if err != nil {
		return stats, err
	}
	for _, record := range records {
		item := recordToItem(record)
		stats.TotalRecords++
		if item.SourceName != "" {
			stats.BySource[item.SourceName]++
		}
		if item.SourceDate.IsZero() {
			continue
		}
		if stats.Oldest.IsZero() || item.SourceDate.Before(stats.Oldest) {
			stats.Oldest = item.SourceDate
		}
		if stats.Newest.IsZero() || item.SourceDate.After(stats.Newest) {
			stats.Newest = item.SourceDate
		}
	}
	return stats, nil
}

func (a *Airtable) listRecords(ctx context.Context, filterFormula, sortField, sortDir string, maxRecords int) ([]airtableRecord, error) {
	var all []airtableRecord
	offset := ""

	for {
		params := url.Values{}
		params.Set("pageSize", fmt.Sprint(airtablePageSize))
		if filterFormula != "" {
			params.Set("filterByFormula", filterFormula)
		}
		if sortField != "" {
			params.Set("sort[0][field]", sortField)
			params.Set("sort[0][direction]", sortDir)
		}
		if offset != "" {
			params.Set("offset", offset)
		}

		var page airtablePage
		if err := a.do(ctx, http.MethodGet, a.tableURL()+"?"+params.Encode(), nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Records...)

		if maxRecords > 0 && len(all) >= maxRecords {
			return all[:maxRecords], nil
		}
		if page.Offset == "" || len(page.Records) == 0 {
			return all, nil
		}
		offset = page.Offset
	}
}

func (a *Airtable) deleteRecords(ctx context.Context, ids []string) (int, error) {
	deleted := 0
	for start := 0; start < len(ids); start += airtableDeleteSize {
		end := start + airtableDeleteSize
		if end > len(ids) {
			end = len(ids)
		}

		params := url.Values{}
		for _, id := range ids[start:end] {
			params.Add("records[]", id)
		}

		var resp airtablePage
		if err := a.do(ctx, http.MethodDelete, a.tableURL()+"?"+params.Encode(), nil, &resp); err != nil {
			return deleted, fmt.Errorf("delete batch: %w", err)
		}
		deleted += end - start
	}
	return deleted, nil
}

func (a *Airtable) do(ctx context.Context, method, rawURL string, payload, out interface{}) error {
	a.rateLimit()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("airtable %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func itemToFields(item domain.Item) map[string]interface{} {
	fields := map[string]interface{}{
		"unique_key":  item.Key(),
		"source_name": item.SourceName,
		"source_id":   item.SourceID,
		"title":       item.Title,
		"url":         item.URL,
		"score":       item.Score,
	}
	if item.Description != "" {
		fields["description"] = item.Description
	}
	if !item.SourceDate.IsZero() {
		fields["source_date"] = item.SourceDate.UTC().Format(time.RFC3339)
	}
	if len(item.Tags) > 0 {
		fields["tags"] = item.Tags
	}
	if item.Points > 0 {
		fields["points"] = item.Points
	}
	if item.CommentsCount > 0 {
		fields["comments_count"] = item.CommentsCount
	}
	if item.Votes > 0 {
		fields["votes"] = item.Votes
	}
	if item.Stars > 0 {
		fields["stars"] = item.Stars
	}
	if item.StarsToday > 0 {
		fields["stars_today"] = item.StarsToday
	}
	if item.Forks > 0 {
		fields["forks"] = item.Forks
	}
	if item.Watchers > 0 {
		fields["watchers"] = item.Watchers
	}
	if item.Language != "" {
		fields["language"] = item.Language
	}
	if item.Maker != nil {
		if item.Maker.Name != "" {
			fields["maker_name"] = item.Maker.Name
		}
		if item.Maker.Username != "" {
			fields["maker_username"] = item.Maker.Username
		}
		if item.Maker.URL != "" {
			fields["maker_url"] = item.Maker.URL
		}
		if item.Maker.Avatar != "" {
			fields["maker_avatar"] = item.Maker.Avatar
		}
		if item.Maker.Bio != "" {
			fields["maker_bio"] = item.Maker.Bio
		}
		if item.Maker.Twitter != "" {
			fields["maker_twitter"] = item.Maker.Twitter
		}
	}
	return fields
}

func recordToItem(record airtableRecord) domain.Item {
	f := record.Fields

	item := domain.Item{
		SourceName:    stringField(f, "source_name"),
		SourceID:      stringField(f, "source_id"),
		Title:         stringField(f, "title"),
		Description:   stringField(f, "description"),
		URL:           stringField(f, "url"),
		Score:         floatField(f, "score"),
		Points:        intField(f, "points"),
		CommentsCount: intField(f, "comments_count"),
		Votes:         intField(f, "votes"),
		Stars:         intField(f, "stars"),
		StarsToday:    intField(f, "stars_today"),
		Forks:         intField(f, "forks"),
		Watchers:      intField(f, "watchers"),
		Language:      stringField(f, "language"),
	}

	if raw := stringField(f, "source_date"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			item.SourceDate = t
		}
	}
	if tags, ok := f["tags"].([]interface{}); ok {
		for _, tag := range tags {
			if s, ok := tag.(string); ok {
				item.Tags = append(item.Tags, s)
			}
		}
	}

	maker := domain.Maker{
		Name:     stringField(f, "maker_name"),
		Username: stringField(f, "maker_username"),
		URL:      stringField(f, "maker_url"),
		Avatar:   stringField(f, "maker_avatar"),
		Bio:      stringField(f, "maker_bio"),
		Twitter:  stringField(f, "maker_twitter"),
	}
	if maker != (domain.Maker{}) {
		item.Maker = &maker
	}
	return item
}

func stringField(fields map[string]interface{}, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

func floatField(fields map[string]interface{}, key string) float64 {
	if v, ok := fields[key].(float64); ok {
		return v
	}
	return 0
}

func intField(fields map[string]interface{}, key string) int {
	if v, ok := fields[key].(float64); ok {
		return int(v)
	}
	return 0
}
