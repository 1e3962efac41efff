package render

import (
	"context"
	"fmt"
	"time"

	"unipanel-backend/internal/cache"
	"unipanel-backend/internal/schema"
	"unipanel-backend/internal/store"
)

// OptionsPageSize bounds how many instances of the related entity are
// loaded into a select control.
const OptionsPageSize = 1000

const (
	optionsFreshTTL  = 5 * time.Minute
	optionsRetainTTL = 10 * time.Minute
)

// Option is one selectable {id, title} pair for a relation control.
type Option struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// OptionsResult is the resolved option list for one related definition.
type OptionsResult struct {
	Options    []Option `json:"options"`
	TitleField string   `json:"titleField"`
}

// OptionsResolver turns a relation field's relatedEntityDefinitionId into
// an option list. Results are cached because relation universes change
// infrequently relative to page views.
type OptionsResolver struct {
	store    *store.Store
	registry *schema.Registry
	cache    *cache.Cache[string, *OptionsResult]
}

func NewOptionsResolver(s *store.Store, reg *schema.Registry) *OptionsResolver {
	r := &OptionsResolver{store: s, registry: reg}
	r.cache = cache.New(optionsFreshTTL, optionsRetainTTL, r.fetch)
	return r
}

// Resolve returns the option list for the related entity definition,
// served from cache within the freshness window.
func (r *OptionsResolver) Resolve(ctx context.Context, relatedDefinitionID string) (*OptionsResult, error) {
	return r.cache.Get(ctx, relatedDefinitionID)
}

// Invalidate drops the cached options for a definition, e.g. after one of
// its instances was mutated through this process.
func (r *OptionsResolver) Invalidate(relatedDefinitionID string) {
	r.cache.Invalidate(relatedDefinitionID)
}

func (r *OptionsResolver) fetch(ctx context.Context, definitionID string) (*OptionsResult, error) {
	def := r.registry.GetDefinition(definitionID)
	if def == nil {
		return nil, fmt.Errorf("%w: %s", schema.ErrNotFound, definitionID)
	}

	fields := r.registry.FieldsFor(definitionID)
	titleName := "id"
	if tf := fields.TitleField(); tf != nil && tf.HasColumn() {
		titleName = tf.Name
	}

	columns := "id"
	if titleName != "id" {
		columns += ", " + titleName
	}
	sql := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s LIMIT %d",
		columns, def.TableName, titleName, OptionsPageSize)

	rows, err := store.QueryRows(ctx, r.store.Pool, sql)
	if err != nil {
		return nil, fmt.Errorf("load options for %s: %w", def.Name, err)
	}

	result := &OptionsResult{TitleField: titleName, Options: make([]Option, 0, len(rows))}
	for _, row := range rows {
		id := fmt.Sprintf("%v", row["id"])
		title := id
		if v := row[titleName]; v != nil {
			title = fmt.Sprintf("%v", v)
		}
		result.Options = append(result.Options, Option{ID: id, Title: title})
	}
	return result, nil
}
