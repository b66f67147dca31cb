package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/inkwellapp/inkwell-server/internal/domain"
)

// numericIDField carries the entity id as a number so ties sort by ascending id.
const numericIDField = "num_id"

// buildIndexMapping creates the Bleve mapping for one entity kind.
//
// Every declared field uses the standard analyzer (unicode tokenizer,
// lowercase, English stop words) without stemming, so substring and fuzzy
// queries see the words as written. Nothing is stored; hits only carry ids.
func buildIndexMapping(kind domain.Kind) mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = standard.Name

	docMapping := bleve.NewDocumentMapping()
	docMapping.Dynamic = false

	for _, field := range kind.Fields() {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = standard.Name
		fm.Store = false
		fm.IncludeTermVectors = false
		docMapping.AddFieldMappingsAt(field, fm)
	}

	idMapping := bleve.NewNumericFieldMapping()
	idMapping.Store = false
	idMapping.DocValues = true
	docMapping.AddFieldMappingsAt(numericIDField, idMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)
	indexMapping.DefaultMapping = docMapping

	return indexMapping
}
