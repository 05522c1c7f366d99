// Package tuning holds the runtime-adjustable thresholds of the retrieval
// and knowledge-gap pipeline.
package tuning

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/telemed-faq/backend/pkg/config"
)

var ErrInvalidThreshold = errors.New("threshold out of range")

// Settings is one consistent snapshot of the tuning knobs.
type Settings struct {
	RelevanceCutoff     float64       `json:"relevance_cutoff" validate:"gte=0,lte=1"`
	ResolutionThreshold float64       `json:"resolution_threshold" validate:"gte=0,lte=1"`
	MergeThreshold      float64       `json:"merge_threshold" validate:"gte=0,lte=1"`
	DuplicateThreshold  float64       `json:"duplicate_threshold" validate:"gte=0,lte=1"`
	NewEntryThreshold   float64       `json:"new_entry_threshold" validate:"gte=0,lte=1"`
	BatchSize           int           `json:"batch_size" validate:"gt=0,lte=1000"`
	ItemDelay           time.Duration `json:"item_delay" validate:"gte=0"`
	BatchDelay          time.Duration `json:"batch_delay" validate:"gte=0"`
}

func Defaults() Settings {
	return Settings{
		RelevanceCutoff:     0.1,
		ResolutionThreshold: 0.7,
		MergeThreshold:      0.8,
		DuplicateThreshold:  0.75,
		NewEntryThreshold:   0.7,
		BatchSize:           10,
		ItemDelay:           100 * time.Millisecond,
		BatchDelay:          2 * time.Second,
	}
}

func FromConfig(cfg config.KnowledgeConfig) Settings {
	return Settings{
		RelevanceCutoff:     cfg.RelevanceCutoff,
		ResolutionThreshold: cfg.ResolutionThreshold,
		MergeThreshold:      cfg.MergeThreshold,
		DuplicateThreshold:  cfg.DuplicateThreshold,
		NewEntryThreshold:   cfg.NewEntryThreshold,
		BatchSize:           cfg.BatchSize,
		ItemDelay:           cfg.ItemDelay,
		BatchDelay:          cfg.BatchDelay,
	}
}

var validate = validator.New()

// Validate reports every out-of-range field. Values are never clamped.
func (s Settings) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, err)
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fmt.Sprintf("%s=%v violates %s%s", fe.Field(), fe.Value(), fe.Tag(), paramSuffix(fe.Param())))
	}
	return fmt.Errorf("%w: %s", ErrInvalidThreshold, strings.Join(problems, "; "))
}

func paramSuffix(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}

// Store guards the live Settings. Readers get copies.
type Store struct {
	mu      sync.RWMutex
	current Settings
}

func NewStore(initial Settings) (*Store, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &Store{current: initial}, nil
}

// MustStore is NewStore for settings known to be valid, such as Defaults().
func MustStore(initial Settings) *Store {
	s, err := NewStore(initial)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update replaces the settings after validating them as a whole. On error
// the previous settings stay in effect.
func (s *Store) Update(next Settings) (Settings, error) {
	if err := next.Validate(); err != nil {
		return s.Get(), err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = next
	return next, nil
}
