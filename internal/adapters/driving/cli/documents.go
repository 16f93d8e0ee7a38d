package cli

import (
	"context"
	"fmt"

	"github.com/s-edling/quackdas-sub000/internal/connectors/filesystem"
	"github.com/s-edling/quackdas-sub000/internal/core/domain"
)

// documentFlags select documents from paths and an optional manifest.
type documentFlags struct {
	paths    []string
	manifest string
	include  []string
	exclude  []string
}

func (f documentFlags) empty() bool {
	return len(f.paths) == 0 && f.manifest == ""
}

func (f documentFlags) loader() *filesystem.Loader {
	return filesystem.NewLoader(filesystem.Options{Include: f.include, Exclude: f.exclude})
}

// load reads documents from the manifest and paths. Manifest documents
// come first; a path document with the same id is dropped.
func (f documentFlags) load(ctx context.Context) ([]domain.Document, error) {
	var docs []domain.Document
	if f.manifest != "" {
		m, err := filesystem.LoadManifest(f.manifest)
		if err != nil {
			return nil, err
		}
		docs = append(docs, m...)
	}
	if len(f.paths) == 0 {
		return docs, nil
	}

	loaded, err := f.loader().Load(ctx, f.paths...)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	return mergeDocuments(docs, loaded), nil
}

// lookup returns a lookup over the selected documents, or nil when none
// were selected.
func (f documentFlags) lookup(ctx context.Context) (domain.DocumentLookup, error) {
	if f.empty() {
		return nil, nil
	}
	docs, err := f.load(ctx)
	if err != nil {
		return nil, err
	}
	return domain.LookupFromDocuments(docs), nil
}

// groundingLookup resolves document text for ask: selected documents
// first, then files on disk by their path IDs.
func (f documentFlags) groundingLookup(ctx context.Context) (domain.DocumentLookup, error) {
	selected, err := f.lookup(ctx)
	if err != nil {
		return nil, err
	}
	return domain.ChainLookups(selected, filesystem.NewLoader(filesystem.Options{}).Lookup), nil
}
