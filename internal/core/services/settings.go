package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driven"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
const (
	KeyBaseURL           = "ollama.base_url"
	keyTimeout           = "ollama.timeout_seconds"
	keyRequestsPerSecond = "ollama.requests_per_second"
	KeyEmbeddingModel    = "embedding.model"
	keyEmbedConcurrency  = "embedding.concurrency"
	KeyLLMModel          = "llm.model"
	keyNumCtx            = "llm.num_ctx"
	keyChunkMin          = "chunking.min_chars"
	keyChunkMax          = "chunking.max_chars"
	keyChunkOverlap      = "chunking.overlap_chars"
	keyTopK              = "search.top_k"
	keyCandidateK        = "search.candidate_k"
	keyRerankSemantic    = "rerank.semantic"
	keyRerankCoverage    = "rerank.coverage"
	keyRerankDensity     = "rerank.density"
	keyRerankPhrase      = "rerank.phrase"
	keyAskMode           = "ask.mode"
	keyMinCitations      = "ask.min_citations"
	keyMaxRepairs        = "ask.max_repairs"
	keyCancelGrace       = "jobs.cancel_grace_seconds"
)

// Read-only keys reported from the store's metadata.
const (
	keyIndexEmbeddingModel = "index.embedding_model"
	keyIndexLLMModel       = "index.llm_model"
)

// setting binds a config key to a field of AppSettings. field returns a
// pointer to one of string, int, float64, time.Duration (whole seconds)
// or domain.AskMode.
type setting struct {
	key   string
	field func(*domain.AppSettings) any
}

var settingsTable = []setting{
	{KeyBaseURL, func(a *domain.AppSettings) any { return &a.Ollama.BaseURL }},
	{keyTimeout, func(a *domain.AppSettings) any { return &a.Ollama.Timeout }},
	{keyRequestsPerSecond, func(a *domain.AppSettings) any { return &a.Ollama.RequestsPerSecond }},
	{KeyEmbeddingModel, func(a *domain.AppSettings) any { return &a.Embedding.Model }},
	{keyEmbedConcurrency, func(a *domain.AppSettings) any { return &a.Embedding.Concurrency }},
	{KeyLLMModel, func(a *domain.AppSettings) any { return &a.LLM.Model }},
	{keyNumCtx, func(a *domain.AppSettings) any { return &a.LLM.NumCtx }},
	{keyChunkMin, func(a *domain.AppSettings) any { return &a.Chunking.MinChars }},
	{keyChunkMax, func(a *domain.AppSettings) any { return &a.Chunking.MaxChars }},
	{keyChunkOverlap, func(a *domain.AppSettings) any { return &a.Chunking.OverlapChars }},
	{keyTopK, func(a *domain.AppSettings) any { return &a.Search.TopK }},
	{keyCandidateK, func(a *domain.AppSettings) any { return &a.Search.CandidateK }},
	{keyRerankSemantic, func(a *domain.AppSettings) any { return &a.Search.Weights.Semantic }},
	{keyRerankCoverage, func(a *domain.AppSettings) any { return &a.Search.Weights.Coverage }},
	{keyRerankDensity, func(a *domain.AppSettings) any { return &a.Search.Weights.Density }},
	{keyRerankPhrase, func(a *domain.AppSettings) any { return &a.Search.Weights.Phrase }},
	{keyAskMode, func(a *domain.AppSettings) any { return &a.Ask.Mode }},
	{keyMinCitations, func(a *domain.AppSettings) any { return &a.Ask.MinCitations }},
	{keyMaxRepairs, func(a *domain.AppSettings) any { return &a.Ask.MaxRepairs }},
	{keyCancelGrace, func(a *domain.AppSettings) any { return &a.Jobs.CancelGrace }},
}

func lookupSetting(key string) (setting, bool) {
	for _, s := range settingsTable {
		if s.key == key {
			return s, true
		}
	}
	return setting{}, false
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
	meta        driven.MetadataStore
}

// NewSettingsService creates a new settings service. The validator and
// metadata store are optional.
func NewSettingsService(
	configStore driven.ConfigStore,
	aiValidator driven.AIConfigValidator,
	meta driven.MetadataStore,
) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
		meta:        meta,
	}
}

// Get retrieves current application settings. Keys absent from the
// config store keep their defaults.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	settings := domain.DefaultAppSettings()
	for _, st := range settingsTable {
		if _, ok := s.configStore.Get(st.key); !ok {
			continue
		}
		s.load(st.key, st.field(&settings))
	}
	return &settings, nil
}

func (s *SettingsService) load(key string, field any) {
	switch p := field.(type) {
	case *string:
		if v := strings.TrimSpace(s.configStore.GetString(key)); v != "" {
			*p = v
		}
	case *int:
		*p = s.configStore.GetInt(key)
	case *float64:
		*p = s.configStore.GetFloat(key)
	case *time.Duration:
		*p = time.Duration(s.configStore.GetInt(key)) * time.Second
	case *domain.AskMode:
		if v := domain.AskMode(s.configStore.GetString(key)); v.IsValid() {
			*p = v
		}
	}
}

// Save validates and persists application settings.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	for _, st := range settingsTable {
		if err := s.configStore.Set(st.key, storedValue(st.field(settings))); err != nil {
			return fmt.Errorf("save %s: %w", st.key, err)
		}
	}
	return nil
}

// Set parses value for a single key, validates the resulting settings
// and persists the key.
func (s *SettingsService) Set(key, value string) error {
	st, ok := lookupSetting(key)
	if !ok {
		if key == keyIndexEmbeddingModel || key == keyIndexLLMModel {
			return fmt.Errorf("%w: %s is read-only", domain.ErrInvalidInput, key)
		}
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}
	field := st.field(settings)
	if err := parseInto(field, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	if err := s.configStore.Set(key, storedValue(field)); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Keys lists every setting with its current value, plus the models
// recorded in the index metadata.
func (s *SettingsService) Keys() (map[string]string, error) {
	settings, err := s.Get()
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(settingsTable)+2)
	for _, st := range settingsTable {
		out[st.key] = formatValue(st.field(settings))
	}

	if s.meta != nil {
		ctx := context.Background()
		for key, metaKey := range map[string]string{
			keyIndexEmbeddingModel: driven.MetaEmbeddingModel,
			keyIndexLLMModel:       driven.MetaLLMModel,
		} {
			v, ok, err := s.meta.GetMeta(ctx, metaKey)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", metaKey, err)
			}
			if ok {
				out[key] = v
			}
		}
	}
	return out, nil
}

// SortedKeys returns the keys of m in order, for display.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// ValidateConnectivity checks the endpoint and that both configured models
// are installed.
func (s *SettingsService) ValidateConnectivity(ctx context.Context) error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	if err := s.aiValidator.ValidateEmbedding(ctx, settings.Ollama, settings.Embedding); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := s.aiValidator.ValidateLLM(ctx, settings.Ollama, settings.LLM); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	return nil
}

func parseInto(field any, raw string) error {
	raw = strings.TrimSpace(raw)
	switch p := field.(type) {
	case *string:
		if raw == "" {
			return fmt.Errorf("%w: empty value", domain.ErrInvalidInput)
		}
		*p = raw
	case *int:
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: %q is not a non-negative integer", domain.ErrInvalidInput, raw)
		}
		*p = n
	case *float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("%w: %q is not a non-negative number", domain.ErrInvalidInput, raw)
		}
		*p = f
	case *time.Duration:
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: %q is not a positive number of seconds", domain.ErrInvalidInput, raw)
		}
		*p = time.Duration(n) * time.Second
	case *domain.AskMode:
		mode := domain.AskMode(strings.ToLower(raw))
		if !mode.IsValid() {
			return fmt.Errorf("%w: mode must be strict or loose", domain.ErrInvalidInput)
		}
		*p = mode
	}
	return nil
}

func storedValue(field any) any {
	switch p := field.(type) {
	case *string:
		return *p
	case *int:
		return *p
	case *float64:
		return *p
	case *time.Duration:
		return int(*p / time.Second)
	case *domain.AskMode:
		return string(*p)
	}
	return nil
}

func formatValue(field any) string {
	switch p := field.(type) {
	case *string:
		return *p
	case *int:
		return strconv.Itoa(*p)
	case *float64:
		return strconv.FormatFloat(*p, 'g', -1, 64)
	case *time.Duration:
		return strconv.Itoa(int(*p / time.Second))
	case *domain.AskMode:
		return string(*p)
	}
	return ""
}
