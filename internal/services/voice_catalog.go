package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/convolab-backend/internal/platform/apierr"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
	"github.com/yungbote/convolab-backend/internal/services/voices"
)

type Voice struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Gender      string `yaml:"gender" json:"gender"`
	OpenAIVoice string `yaml:"openai" json:"-"`
	Language    string `yaml:"-" json:"language"`
}

// VoiceSource lists the voices available for a language.
type VoiceSource func(ctx context.Context, language string) ([]Voice, error)

type VoiceCatalog interface {
	Lookup(ctx context.Context, language, voiceID string) (Voice, error)
	// Find resolves a voice id in any language.
	Find(ctx context.Context, voiceID string) (Voice, error)
	List(ctx context.Context, language string) ([]Voice, error)
	DefaultNarrator(ctx context.Context, language string) (Voice, error)
	Invalidate(language string)
}

type voiceFile struct {
	Narrators map[string]string  `yaml:"narrators"`
	Voices    map[string][]Voice `yaml:"voices"`
}

type voiceCatalog struct {
	log       *logger.Logger
	source    VoiceSource
	narrators map[string]string
	languages []string
	cache     *expirable.LRU[string, []Voice]

	// voice id -> language, filled as languages are loaded
	mu      sync.RWMutex
	byVoice map[string]string
}

// NewVoiceCatalog serves the embedded catalog through an expiring cache.
func NewVoiceCatalog(log *logger.Logger, ttl time.Duration) (VoiceCatalog, error) {
	var f voiceFile
	if err := yaml.Unmarshal(voices.Catalog, &f); err != nil {
		return nil, fmt.Errorf("parse voice catalog: %w", err)
	}
	static := func(_ context.Context, language string) ([]Voice, error) {
		out := make([]Voice, 0, len(f.Voices[language]))
		for _, v := range f.Voices[language] {
			v.Language = language
			out = append(out, v)
		}
		return out, nil
	}
	langs := make([]string, 0, len(f.Voices))
	for l := range f.Voices {
		langs = append(langs, l)
	}
	return NewVoiceCatalogWithSource(log, ttl, static, f.Narrators, langs), nil
}

func NewVoiceCatalogWithSource(log *logger.Logger, ttl time.Duration, source VoiceSource, narrators map[string]string, languages []string) VoiceCatalog {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &voiceCatalog{
		log:       log.With("service", "VoiceCatalog"),
		source:    source,
		narrators: narrators,
		languages: languages,
		cache:     expirable.NewLRU[string, []Voice](64, nil, ttl),
		byVoice:   map[string]string{},
	}
}

func normLang(language string) string {
	return strings.ToLower(strings.TrimSpace(language))
}

func (c *voiceCatalog) List(ctx context.Context, language string) ([]Voice, error) {
	language = normLang(language)
	if v, ok := c.cache.Get(language); ok {
		return v, nil
	}
	list, err := c.source(ctx, language)
	if err != nil {
		return nil, apierr.External("voices", fmt.Errorf("list voices for %q: %w", language, err))
	}
	c.cache.Add(language, list)
	c.mu.Lock()
	for _, v := range list {
		c.byVoice[v.ID] = language
	}
	c.mu.Unlock()
	return list, nil
}

func (c *voiceCatalog) Lookup(ctx context.Context, language, voiceID string) (Voice, error) {
	list, err := c.List(ctx, language)
	if err != nil {
		return Voice{}, err
	}
	for _, v := range list {
		if v.ID == voiceID {
			return v, nil
		}
	}
	return Voice{}, apierr.NotFound("voice_not_found", fmt.Errorf("voice %q is not available for %q", voiceID, language))
}

func (c *voiceCatalog) Find(ctx context.Context, voiceID string) (Voice, error) {
	c.mu.RLock()
	lang, ok := c.byVoice[voiceID]
	c.mu.RUnlock()
	if ok {
		if v, err := c.Lookup(ctx, lang, voiceID); err == nil {
			return v, nil
		}
	}
	for _, l := range c.languages {
		if v, err := c.Lookup(ctx, l, voiceID); err == nil {
			return v, nil
		} else if !apierr.Is(err, apierr.KindNotFound) {
			return Voice{}, err
		}
	}
	return Voice{}, apierr.NotFound("voice_not_found", fmt.Errorf("voice %q is not in the catalog", voiceID))
}

// DefaultNarrator returns the narrator for the learner's native language,
// falling back to English.
func (c *voiceCatalog) DefaultNarrator(ctx context.Context, language string) (Voice, error) {
	language = normLang(language)
	id, ok := c.narrators[language]
	if !ok {
		language, id = "en", c.narrators["en"]
	}
	if id == "" {
		return Voice{}, apierr.NotFound("voice_not_found", fmt.Errorf("no narrator voice configured"))
	}
	return c.Lookup(ctx, language, id)
}

func (c *voiceCatalog) Invalidate(language string) {
	if language == "" {
		c.cache.Purge()
		return
	}
	c.cache.Remove(normLang(language))
}
