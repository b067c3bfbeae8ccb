// Package blocking groups entities into candidate blocks that share a derived key
package blocking

import (
	"context"
	"fmt"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/extractor"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// SkippedBlock describes a block that exceeded the size limit
type SkippedBlock struct {
	Key  string `json:"key"`
	Size int    `json:"size"`
}

// Result holds the comparable blocks and the ones skipped for size
type Result struct {
	Blocks  map[string][]*models.Entity
	Skipped []SkippedBlock
}

// Keys returns the block keys in sorted order
func (r Result) Keys() []string {
	keys := make([]string, 0, len(r.Blocks))
	for k := range r.Blocks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type compiledKey struct {
	def       models.BlockingKey
	transform transformFunc
}

// Indexer generates blocks from blocking key definitions
type Indexer struct {
	keys         []compiledKey
	maxBlockSize int
	extractor    *extractor.Extractor
	logger       ectologger.Logger
}

// ValidateKeys reports the first blocking key that cannot be used
func ValidateKeys(keys []models.BlockingKey) error {
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k.Name == "" {
			return fmt.Errorf("blocking key without a name")
		}
		if seen[k.Name] {
			return fmt.Errorf("duplicate blocking key %q", k.Name)
		}
		seen[k.Name] = true
		if len(k.Fields) == 0 {
			return fmt.Errorf("blocking key %q has no fields", k.Name)
		}
		if _, err := resolveTransform(k.Transform); err != nil {
			return fmt.Errorf("blocking key %q: %w", k.Name, err)
		}
	}
	return nil
}

// NewIndexer creates an indexer. A maxBlockSize of zero or less disables the size limit.
func NewIndexer(keys []models.BlockingKey, maxBlockSize int, logger ectologger.Logger) (*Indexer, error) {
	if err := ValidateKeys(keys); err != nil {
		return nil, err
	}

	compiled := make([]compiledKey, 0, len(keys))
	for _, k := range keys {
		fn, _ := resolveTransform(k.Transform)
		compiled = append(compiled, compiledKey{def: k, transform: fn})
	}

	return &Indexer{
		keys:         compiled,
		maxBlockSize: maxBlockSize,
		extractor:    extractor.New(),
		logger:       logger,
	}, nil
}

// KeysFor returns the distinct blocking keys of one entity
func (ix *Indexer) KeysFor(entity *models.Entity) []string {
	doc := entity.Attributes()
	seen := make(map[string]bool)
	var keys []string

	for _, k := range ix.keys {
		for _, field := range k.def.Fields {
			for _, raw := range ix.extractor.ExtractStrings(doc, field) {
				value := k.transform(raw, k.def.Params)
				if value == "" {
					continue
				}
				key := k.def.Name + ":" + value
				if !seen[key] {
					seen[key] = true
					keys = append(keys, key)
				}
			}
		}
	}

	return keys
}

// GenerateBlocks groups entities by shared blocking key. Blocks with fewer than two
// entities are dropped and blocks above the size limit are skipped and reported.
func (ix *Indexer) GenerateBlocks(ctx context.Context, entities []*models.Entity) Result {
	ctx, span := tracing.StartSpan(ctx, "blocking.Indexer.GenerateBlocks")
	defer span.End()

	grouped := make(map[string][]*models.Entity)
	for _, entity := range entities {
		for _, key := range ix.KeysFor(entity) {
			grouped[key] = append(grouped[key], entity)
		}
	}

	result := Result{Blocks: make(map[string][]*models.Entity)}
	for key, members := range grouped {
		if len(members) < 2 {
			continue
		}
		if ix.maxBlockSize > 0 && len(members) > ix.maxBlockSize {
			result.Skipped = append(result.Skipped, SkippedBlock{Key: key, Size: len(members)})
			ix.logger.WithContext(ctx).WithFields(map[string]any{
				"block_key":      key,
				"block_size":     len(members),
				"max_block_size": ix.maxBlockSize,
			}).Warn("Skipping oversized block")
			continue
		}
		result.Blocks[key] = members
	}

	sort.Slice(result.Skipped, func(i, j int) bool { return result.Skipped[i].Key < result.Skipped[j].Key })

	ix.logger.WithContext(ctx).WithFields(map[string]any{
		"entities":       len(entities),
		"blocks":         len(result.Blocks),
		"skipped_blocks": len(result.Skipped),
	}).Debug("Generated blocks")

	return result
}
