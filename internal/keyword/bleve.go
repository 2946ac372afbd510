package keyword

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/ragdocs/internal/models"
)

const (
	fieldMessage = "message"
	fieldRole    = "role"
	fieldSession = "session_token"
	fieldUser    = "user_id"

	deleteBatchSize = 500
)

// BleveIndex implements ChatIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

func chatMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so a query matches the exact word.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(fieldMessage, textFieldMapping)
	for _, f := range []string{fieldRole, fieldSession, fieldUser} {
		docMapping.AddFieldMappingsAt(f, bleve.NewKeywordFieldMapping())
	}
	im.AddDocumentMapping("chat", docMapping)
	im.DefaultType = "chat"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path keeps the index in memory.
// If you change the index mapping in code, remove the index directory; it is rebuilt
// only from messages written afterwards.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(chatMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, chatMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// ChatDocID returns the index id of a chat message.
func ChatDocID(chatID int64) string {
	return "chat:" + strconv.FormatInt(chatID, 10)
}

// IndexChats indexes chats in one batch.
func (b *BleveIndex) IndexChats(ctx context.Context, userID int64, chats []*models.ChatMessage) error {
	if len(chats) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, c := range chats {
		doc := map[string]interface{}{
			fieldMessage: c.Message,
			fieldRole:    string(c.Role),
			fieldSession: c.SessionToken,
			fieldUser:    strconv.FormatInt(userID, 10),
		}
		if err := batch.Index(ChatDocID(c.ID), doc); err != nil {
			return fmt.Errorf("index chat %d: %w", c.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("Bleve batch failed: %w", err)
	}
	return nil
}

// Search runs a match (or fuzzy) query over message text restricted to userID.
// When opts.PhraseBoost > 1, hits that also match the query as a phrase are boosted and re-ranked.
func (b *BleveIndex) Search(ctx context.Context, userID int64, query string, limit int, opts *SearchOptions) ([]*Hit, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []*Hit{}, nil
	}
	phraseBoost := 1.0
	fuzzyEnabled := false
	fuzziness := 2
	if opts != nil {
		if opts.PhraseBoost > 0 {
			phraseBoost = opts.PhraseBoost
		}
		fuzzyEnabled = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	var textQuery blevequery.Query
	if fuzzyEnabled {
		textQuery = buildFuzzyQuery(query, fuzziness, fieldMessage)
	} else {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(fieldMessage)
		textQuery = mq
	}
	q := bleve.NewConjunctionQuery(textQuery, userQuery(userID))

	reqSize := limit
	if phraseBoost > 1.0 {
		// Fetch extra so re-ranking can promote phrase matches from below the cut.
		reqSize = limit * 2
		if reqSize < 50 {
			reqSize = 50
		}
	}
	req := bleve.NewSearchRequest(q)
	req.Size = reqSize
	req.Fields = []string{fieldMessage, fieldRole, fieldSession}
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	hits := make([]*Hit, 0, len(results.Hits))
	for _, h := range results.Hits {
		hits = append(hits, &Hit{
			ChatID:       h.ID,
			SessionToken: fieldString(h.Fields, fieldSession),
			Role:         models.Role(fieldString(h.Fields, fieldRole)),
			Message:      fieldString(h.Fields, fieldMessage),
			Score:        h.Score,
		})
	}

	if phraseBoost > 1.0 && len(tokenizeQuery(query)) > 1 {
		phrases := b.findPhraseMatches(ctx, query, userID, reqSize)
		for _, h := range hits {
			if phrases[h.ChatID] {
				h.Score *= phraseBoost
			}
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func userQuery(userID int64) blevequery.Query {
	tq := bleve.NewTermQuery(strconv.FormatInt(userID, 10))
	tq.SetField(fieldUser)
	return tq
}

func fieldString(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

// tokenizeQuery splits query into lowercase terms, filtering out empty strings.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// buildFuzzyQuery creates a disjunction of FuzzyQueries for each term in the query,
// restricted to field.
func buildFuzzyQuery(queryStr string, fuzziness int, field string) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	if len(terms) == 1 {
		fq := bleve.NewFuzzyQuery(terms[0])
		fq.SetFuzziness(fuzziness)
		fq.SetField(field)
		return fq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(field)
		queries = append(queries, fq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// findPhraseMatches returns the ids of userID's messages where the query terms are adjacent.
func (b *BleveIndex) findPhraseMatches(ctx context.Context, query string, userID int64, reqSize int) map[string]bool {
	matches := make(map[string]bool)
	pq := bleve.NewMatchPhraseQuery(query)
	pq.SetField(fieldMessage)
	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(pq, userQuery(userID)))
	req.Size = reqSize
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return matches
	}
	for _, hit := range results.Hits {
		matches[hit.ID] = true
	}
	return matches
}

// DeleteSession removes all messages indexed under sessionToken.
func (b *BleveIndex) DeleteSession(ctx context.Context, sessionToken string) error {
	tq := bleve.NewTermQuery(sessionToken)
	tq.SetField(fieldSession)
	for {
		req := bleve.NewSearchRequest(tq)
		req.Size = deleteBatchSize
		results, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("Bleve search failed: %w", err)
		}
		if len(results.Hits) == 0 {
			return nil
		}
		batch := b.index.NewBatch()
		for _, h := range results.Hits {
			batch.Delete(h.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("Bleve batch delete failed: %w", err)
		}
	}
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// DocCount returns the total number of messages in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}
