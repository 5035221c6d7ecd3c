// Package ingest implements the Opportunity Ingestor: CSV intake through
// normalization, deduplication, expiration filtering, enrichment, optional
// deadline rescue, embedding, and vector-index upsert.
package ingest

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/altitut/fundingmatch/internal/llmclient"
	"github.com/altitut/fundingmatch/internal/models"
	"github.com/altitut/fundingmatch/internal/textextract"
	"github.com/altitut/fundingmatch/internal/vectorindex"
)

// embedBatchSize bounds how many rows are embedded and written together, so
// progress reporting stays fine-grained and a batch failure only ever marks
// a small number of rows as errored.
const embedBatchSize = 5

// Event is a progress notification emitted at phase transitions and at
// least once per batch.
type Event struct {
	Stage   string
	Message string
	Current int
	Total   int
}

// ProgressFunc receives ingestion progress events. A nil func is a no-op.
type ProgressFunc func(Event)

// Deps bundles the external collaborators the pipeline calls into. The
// Index's own embed func (wrapping an embedclient.Client) is what actually
// produces vectors, so no separate embedding client is threaded through here.
type Deps struct {
	LLM                  *llmclient.Client
	Index                *vectorindex.Index
	Registry             *Registry
	Tracker              *Tracker
	FetchTimeout         time.Duration
	FetchMaxChars        int
	EnableDeadlineRescue bool
	Concurrency          int
}

// SessionSummary reports what happened during one call to IngestFile or
// IngestDir.
type SessionSummary struct {
	SessionID      string
	FilesProcessed int
	FilesErrored   int
	RowsTotal      int
	RowsNew        int
	RowsDuplicate  int
	RowsExpired    int
	RowsNoDeadline int
	RowsErrored    int
	FileErrors     []string
}

func (s *SessionSummary) merge(other SessionSummary) {
	s.FilesProcessed += other.FilesProcessed
	s.FilesErrored += other.FilesErrored
	s.RowsTotal += other.RowsTotal
	s.RowsNew += other.RowsNew
	s.RowsDuplicate += other.RowsDuplicate
	s.RowsExpired += other.RowsExpired
	s.RowsNoDeadline += other.RowsNoDeadline
	s.RowsErrored += other.RowsErrored
	s.FileErrors = append(s.FileErrors, other.FileErrors...)
}

// IngestDir walks every *.csv file directly under intakeDir (not its
// Ingested/ sibling) and ingests each in turn.
func IngestDir(ctx context.Context, intakeDir string, deps *Deps, progress ProgressFunc) (SessionSummary, error) {
	entries, err := os.ReadDir(intakeDir)
	if err != nil {
		return SessionSummary{}, fmt.Errorf("ingest: reading intake dir: %w", err)
	}

	var total SessionSummary
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			continue
		}
		path := filepath.Join(intakeDir, e.Name())
		summary, err := IngestFile(ctx, path, intakeDir, deps, progress)
		if err != nil {
			total.FilesErrored++
			total.FileErrors = append(total.FileErrors, fmt.Sprintf("%s: %v", e.Name(), err))
			continue
		}
		total.merge(summary)
	}
	total.SessionID = uuid.New().String()[:8]
	return total, nil
}

// IngestFile runs one CSV file through Pending -> Parsing -> Processing ->
// Archived | Errored. A file-level failure (unreadable CSV) leaves the file
// in place for retry and returns an error; the file is never touched.
func IngestFile(ctx context.Context, path, intakeDir string, deps *Deps, progress ProgressFunc) (SessionSummary, error) {
	sessionID := uuid.New().String()[:8]
	emit(progress, Event{Stage: "Parsing", Message: fmt.Sprintf("[%s] %s", sessionID, filepath.Base(path))})

	f, err := os.Open(path)
	if err != nil {
		return SessionSummary{}, fmt.Errorf("ingest: opening %s: %w", path, err)
	}
	rows, rowErrors, err := ParseCSV(f)
	f.Close()
	if err != nil {
		return SessionSummary{}, fmt.Errorf("ingest: parsing %s: %w", path, err)
	}

	totalRows := len(rows) + len(rowErrors)
	emit(progress, Event{Stage: "Processing", Message: filepath.Base(path), Total: totalRows})

	summary := SessionSummary{SessionID: sessionID, RowsTotal: totalRows}
	sourceFile := filepath.Base(path)

	results := make([]rowResult, len(rows))
	for batchStart := 0; batchStart < len(rows); batchStart += embedBatchSize {
		batchEnd := batchStart + embedBatchSize
		if batchEnd > len(rows) {
			batchEnd = len(rows)
		}
		copy(results[batchStart:batchEnd], processRowBatch(ctx, rows[batchStart:batchEnd], deps))
		emit(progress, Event{Stage: "Processing", Current: batchEnd, Total: totalRows})
	}

	// Rows that failed to parse (rowErrors) and rows that were processed
	// concurrently (results) both carry their original CSV RowIndex, so they
	// can be merged back into one CSV-row-ordered sequence here. Every write
	// to the Unprocessed-Tracker happens from this single sequential pass,
	// so two rows in the same concurrent batch can never land out of order.
	accepted := make([]Opportunity, 0, len(rows))
	errIdx := 0
	flushErrorsUpTo := func(rowIdx int) {
		for errIdx < len(rowErrors) && rowErrors[errIdx].RowIndex < rowIdx {
			re := rowErrors[errIdx]
			summary.RowsErrored++
			deps.Tracker.Add(CategoryErrors, TrackerItem{Reason: re.Reason, SourceFile: sourceFile, RowIndex: re.RowIndex})
			errIdx++
		}
	}
	for i, res := range results {
		rowIdx := rows[i].RowIndex
		flushErrorsUpTo(rowIdx)
		switch res.outcome {
		case rowDuplicate:
			summary.RowsDuplicate++
			deps.Tracker.Add(CategoryDuplicates, TrackerItem{CanonicalID: res.opp.ID, Title: res.opp.Title, SourceFile: sourceFile, RowIndex: rowIdx})
		case rowExpired:
			summary.RowsExpired++
			deps.Tracker.Add(CategoryExpired, TrackerItem{CanonicalID: res.opp.ID, Title: res.opp.Title, SourceFile: sourceFile, RowIndex: rowIdx})
		case rowError:
			summary.RowsErrored++
			deps.Tracker.Add(CategoryErrors, TrackerItem{Title: res.opp.Title, Reason: res.reason, SourceFile: sourceFile, RowIndex: rowIdx})
		case rowAccepted:
			if res.opp.NoDeadline {
				summary.RowsNoDeadline++
				deps.Tracker.Add(CategoryNoDeadline, TrackerItem{CanonicalID: res.opp.ID, Title: res.opp.Title, SourceFile: sourceFile, RowIndex: rowIdx})
			}
			accepted = append(accepted, res.opp)
		}
	}
	for ; errIdx < len(rowErrors); errIdx++ {
		re := rowErrors[errIdx]
		summary.RowsErrored++
		deps.Tracker.Add(CategoryErrors, TrackerItem{Reason: re.Reason, SourceFile: sourceFile, RowIndex: re.RowIndex})
	}

	newCount, err := embedAndUpsertBatches(ctx, accepted, sourceFile, deps, progress)
	summary.RowsNew = newCount
	if err != nil {
		summary.RowsErrored += len(accepted) - newCount
		return summary, fmt.Errorf("ingest: embedding/upsert for %s: %w", path, err)
	}

	if err := archive(path, intakeDir); err != nil {
		return summary, fmt.Errorf("ingest: archiving %s: %w", path, err)
	}
	if err := deps.Tracker.Flush(); err != nil {
		log.Printf("ingest: failed to flush tracker: %v", err)
	}
	emit(progress, Event{Stage: "Archived", Message: filepath.Base(path)})
	summary.FilesProcessed = 1
	return summary, nil
}

type rowOutcome int

const (
	rowAccepted rowOutcome = iota
	rowDuplicate
	rowExpired
	rowError
)

type rowResult struct {
	opp     Opportunity
	outcome rowOutcome
	reason  string
}

// processRowBatch runs Normalized..DeadlineRescued? for up to embedBatchSize
// rows concurrently (bounded by deps.Concurrency), since enrichment's URL
// fetch is the only slow step and rows are otherwise independent. Results
// are returned in the same order as the input slice.
func processRowBatch(ctx context.Context, raws []RawOpportunity, deps *Deps) []rowResult {
	results := make([]rowResult, len(raws))

	g, gctx := errgroup.WithContext(ctx)
	limit := deps.Concurrency
	if limit <= 0 {
		limit = embedBatchSize
	}
	g.SetLimit(limit)

	for i := range raws {
		i := i
		g.Go(func() error {
			opp, outcome, reason := processRow(gctx, raws[i], deps)
			results[i] = rowResult{opp: opp, outcome: outcome, reason: reason}
			return nil
		})
	}
	_ = g.Wait() // processRow never returns an error; each row reports its own outcome

	return results
}

// processRow runs Normalized -> DeduplicationChecked -> ExpirationChecked ->
// Enriched -> DeadlineRescued? for a single row, stopping early at whichever
// outcome applies. It does not embed or write to the index, and it does not
// write to the Unprocessed-Tracker itself: processRow runs concurrently
// across a batch, so every Tracker.Add happens afterward from the caller's
// sequential, CSV-row-ordered pass over the results.
func processRow(ctx context.Context, raw RawOpportunity, deps *Deps) (Opportunity, rowOutcome, string) {
	opp := FromRaw(raw)
	opp.ID = CanonicalID(raw)

	// DeduplicationChecked
	if deps.Registry.Has(opp.ID) {
		return opp, rowDuplicate, "duplicate"
	}

	// ExpirationChecked
	now := time.Now().UTC()
	earliest := earliestParsedDate(opp)
	if earliest != nil && earliest.Before(now) {
		return opp, rowExpired, "expired"
	}
	if earliest == nil {
		opp.NoDeadline = true
		opp.CloseDateRaw = "Not specified"
	}
	if opp.AcceptsAnytime || opp.IsRolling {
		opp.CloseDateRaw = "Continuous"
		opp.NoDeadline = false
	}

	// Enriched
	if opp.ExternalURL != "" && deps.FetchTimeout > 0 {
		enrich(ctx, &opp, deps)
	}

	// DeadlineRescued?
	if opp.NoDeadline && deps.EnableDeadlineRescue && deps.LLM != nil {
		rescueDeadline(ctx, &opp, deps)
	}

	return opp, rowAccepted, ""
}

func earliestParsedDate(opp Opportunity) *time.Time {
	var best *time.Time
	consider := func(t *time.Time) {
		if t == nil {
			return
		}
		if best == nil || t.Before(*best) {
			best = t
		}
	}
	consider(opp.CloseAt)
	consider(opp.DeadlineAt)
	consider(opp.ExpirationAt)
	return best
}

func enrich(ctx context.Context, opp *Opportunity, deps *Deps) {
	page, err := textextract.FetchURL(ctx, opp.ExternalURL, deps.FetchTimeout, deps.FetchMaxChars)
	if err != nil {
		return // enrichment failures never fail the row
	}
	if page.MainContent != "" {
		opp.Description = strings.TrimSpace(opp.Description + "\n\n" + page.MainContent)
	}
	if page.EligibilityInfo != "" {
		opp.Description = strings.TrimSpace(opp.Description + "\n\nEligibility: " + page.EligibilityInfo)
	}
	if page.AwardInfo != "" {
		opp.Description = strings.TrimSpace(opp.Description + "\n\nAward: " + page.AwardInfo)
	}
	if page.ContactInfo != "" {
		opp.Description = strings.TrimSpace(opp.Description + "\n\n" + page.ContactInfo)
	}
	opp.Keywords = mergeUniqueFold(opp.Keywords, page.Keywords)

	if opp.NoDeadline {
		for _, hint := range page.DeadlineHints {
			if t, ok := parseDeadlineCandidate(hint); ok {
				opp.DeadlineAt = &t
				opp.NoDeadline = false
				opp.CloseDateRaw = t.Format("2006-01-02")
				break
			}
			if dt, err := parseDateRobust(hint, []string{"en"}); err == nil {
				opp.DeadlineAt = &dt
				opp.NoDeadline = false
				opp.CloseDateRaw = dt.Format("2006-01-02")
				break
			}
		}
	}
}

func rescueDeadline(ctx context.Context, opp *Opportunity, deps *Deps) {
	snippet := TruncateText(opp.Description, 600)
	prompt := fmt.Sprintf(
		"Title: %s\nDescription: %s\nURL: %s\n\nWhat is the application deadline for this funding opportunity? "+
			"Respond with exactly one of: NO_DEADLINE, ANYTIME, or an ISO date (YYYY-MM-DD). No other text.",
		opp.Title, snippet, opp.ExternalURL,
	)

	resp, err := deps.LLM.Generate(ctx, prompt, false)
	if err != nil {
		return
	}
	resp = strings.TrimSpace(resp)

	switch {
	case resp == "NO_DEADLINE":
		return
	case resp == "ANYTIME":
		opp.CloseDateRaw = "Continuous"
		opp.IsRolling = true
		opp.NoDeadline = false
	default:
		if t, err := time.Parse("2006-01-02", resp); err == nil {
			opp.DeadlineAt = &t
			opp.NoDeadline = false
			opp.CloseDateRaw = resp
		}
	}
}

// embedAndUpsertBatches embeds accepted rows in batches of embedBatchSize
// and writes each batch to the index, in vector-upsert -> registry-append
// -> registry-flush order. A batch failure marks every row in that batch as
// errored; rows already committed in prior batches remain committed.
func embedAndUpsertBatches(ctx context.Context, opps []Opportunity, sourceFile string, deps *Deps, progress ProgressFunc) (int, error) {
	if len(opps) == 0 {
		return 0, nil
	}

	newCount := 0
	for start := 0; start < len(opps); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(opps) {
			end = len(opps)
		}
		batch := opps[start:end]

		// Embedding happens inside UpsertBatch via the index's own embed
		// func, so chromem-go computes one vector per document without a
		// separate round trip here.
		records := make([]vectorindex.Record, len(batch))
		now := time.Now().UTC()
		for i, o := range batch {
			m := toModel(o, sourceFile, now)
			if m.CloseDate == nil && o.CloseDateRaw != "Continuous" {
				m.CloseDate = o.DeadlineAt
			}
			records[i] = vectorindex.Record{
				ID:       m.ID,
				Metadata: map[string]string{"title": TruncateText(m.Title, 100), "agency": m.Agency},
				Text:     o.CombinedText(),
				Entity:   m,
			}
		}

		if outcome, err := deps.Index.Opportunities.UpsertBatch(ctx, records, deps.Concurrency); err != nil {
			return newCount, fmt.Errorf("upserting batch %d-%d: %w", start, end, err)
		} else if outcome == vectorindex.Degraded {
			return newCount, fmt.Errorf("opportunities collection degraded during batch %d-%d", start, end)
		}

		for _, o := range batch {
			entry := RegistryEntry{SourceFile: sourceFile, Title: o.Title, Agency: o.AgencyName, TopicNumber: o.TopicNumber, ProcessedAt: now}
			closeAt := o.CloseAt
			if closeAt == nil && o.CloseDateRaw != "Continuous" {
				closeAt = o.DeadlineAt
			}
			if closeAt != nil {
				entry.ExpirationDate = closeAt
			}
			deps.Registry.Put(o.ID, entry)
		}
		if err := deps.Registry.Flush(); err != nil {
			return newCount, fmt.Errorf("flushing registry after batch %d-%d: %w", start, end, err)
		}

		newCount += len(batch)
		emit(progress, Event{Stage: "Embedded", Current: newCount, Total: len(opps)})
	}

	return newCount, nil
}

func toModel(o Opportunity, sourceFile string, now time.Time) models.Opportunity {
	return models.Opportunity{
		ID:               o.ID,
		Title:            o.Title,
		Summary:          o.Summary,
		Description:      o.Description,
		ExternalURL:      o.ExternalURL,
		SourceDomain:     o.SourceDomain,
		SourceID:         o.SourceID,
		Agency:           o.AgencyName,
		ProgramID:        o.ProgramID,
		Branch:           o.Branch,
		TopicNumber:      o.TopicNumber,
		Phase:            o.Phase,
		AwardType:        o.AwardType,
		AmountMin:        o.AmountMin,
		AmountMax:        o.AmountMax,
		Currency:         o.Currency,
		CloseDateDisplay: o.CloseDateRaw,
		CloseDate:        o.CloseAt,
		OpenDate:         o.OpenAt,
		ExpirationAt:     o.ExpirationAt,
		AcceptsAnytime:   o.AcceptsAnytime,
		IsRolling:        o.IsRolling,
		NormalizedStatus: o.NormalizedStatus,
		StatusReason:     o.StatusReason,
		StatusConfidence: o.StatusConfidence,
		Keywords:         o.Keywords,
		Topics:           o.Topics,
		Year:             o.Year,
		SourceFile:       sourceFile,
		IngestedAt:       now,
		UpdatedAt:        now,
	}
}

func archive(path, intakeDir string) error {
	archiveDir := filepath.Join(intakeDir, "Ingested")
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return err
	}
	return os.Rename(path, filepath.Join(archiveDir, filepath.Base(path)))
}

func emit(progress ProgressFunc, e Event) {
	if progress != nil {
		progress(e)
	}
}

