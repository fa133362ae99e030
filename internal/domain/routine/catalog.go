// Package routine содержит каталог якорных рутин (routine anchors):
// ежедневных контекстов, к которым привязываются короткие учебные сессии.
//
// Каталог неизменяем: он собирается один раз при старте через NewCatalog,
// который проверяет уникальность идентификаторов и полноту описаний.
package routine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alem-hub/habit-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// ID - идентификатор рутины.
type ID string

const (
	// Coffee - утренний кофе, заряд энергии.
	Coffee ID = "coffee"

	// Commute - дорога (транзит), время в пути.
	Commute ID = "commute"

	// Lunch - обеденный перерыв.
	Lunch ID = "lunch"

	// Evening - вечернее расслабление перед сном.
	Evening ID = "evening"
)

// CanonicalIDs возвращает идентификаторы канонических рутин в порядке отображения.
func CanonicalIDs() []ID {
	return []ID{Coffee, Commute, Lunch, Evening}
}

// String возвращает строковое представление.
func (id ID) String() string {
	return string(id)
}

// Difficulty определяет сложность учебной активности в рамках рутины.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// IsValid проверяет корректность сложности.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	default:
		return false
	}
}

// WindowCategory - категория временного окна, по которой сравниваются
// предпочтения напарников.
type WindowCategory string

const (
	// WindowMorning - утро ("Morning (7-10 AM)").
	WindowMorning WindowCategory = "Morning"

	// WindowLunch - обед ("Lunch Break (12-1 PM)").
	WindowLunch WindowCategory = "Lunch"

	// WindowEvening - вечер ("Evening (7-9 PM)").
	WindowEvening WindowCategory = "Evening"

	// WindowAny - гибкое окно, совпадает с любым предпочтением (транзит).
	WindowAny WindowCategory = "*"
)

// Matches проверяет, попадает ли предпочитаемое окно кандидата в категорию.
// Сравнение текстовое и регистрозависимое: "Evening (7-9 PM)" совпадает с Evening.
func (w WindowCategory) Matches(preferredWindow string) bool {
	if w == WindowAny {
		return true
	}
	if w == "" {
		return false
	}
	return strings.Contains(preferredWindow, string(w))
}

// ══════════════════════════════════════════════════════════════════════════════
// ANCHOR
// ══════════════════════════════════════════════════════════════════════════════

// Anchor описывает якорную рутину.
type Anchor struct {
	// ID - уникальный ключ рутины.
	ID ID `json:"id"`

	// Name - название для отображения.
	Name string `json:"name"`

	// Description - короткое описание контекста.
	Description string `json:"description"`

	// TimeWindow - типичное время ("7-10 AM").
	TimeWindow string `json:"timeWindow"`

	// StudyTypes - подходящие типы учебных активностей.
	StudyTypes []string `json:"studyTypes"`

	// Difficulty - сложность активностей.
	Difficulty Difficulty `json:"difficulty"`

	// Window - категория окна для подбора напарников.
	Window WindowCategory `json:"window"`
}

// HasStudyType проверяет, поддерживает ли рутина тип активности.
func (a Anchor) HasStudyType(studyType string) bool {
	for _, t := range a.StudyTypes {
		if t == studyType {
			return true
		}
	}
	return false
}

// Validate проверяет корректность описания рутины.
func (a Anchor) Validate() error {
	if a.ID == "" {
		return errors.New("routine id is required")
	}
	if a.Name == "" {
		return fmt.Errorf("routine %s: name is required", a.ID)
	}
	if a.TimeWindow == "" {
		return fmt.Errorf("routine %s: time window is required", a.ID)
	}
	if len(a.StudyTypes) == 0 {
		return fmt.Errorf("routine %s: at least one study type is required", a.ID)
	}
	if !a.Difficulty.IsValid() {
		return fmt.Errorf("routine %s: invalid difficulty %q", a.ID, a.Difficulty)
	}
	if a.Window == "" {
		return fmt.Errorf("routine %s: window category is required", a.ID)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Catalog - неизменяемый реестр рутин.
type Catalog struct {
	anchors []Anchor
	byID    map[ID]int
}

// NewCatalog создаёт каталог, проверяя каждую рутину и уникальность ключей.
func NewCatalog(anchors ...Anchor) (*Catalog, error) {
	if len(anchors) == 0 {
		return nil, errors.New("routine catalog cannot be empty")
	}

	c := &Catalog{
		anchors: make([]Anchor, 0, len(anchors)),
		byID:    make(map[ID]int, len(anchors)),
	}

	for _, a := range anchors {
		if err := a.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[a.ID]; dup {
			return nil, fmt.Errorf("routine %s: duplicate id", a.ID)
		}

		// Копируем срез, чтобы каталог не зависел от вызывающего кода
		a.StudyTypes = append([]string(nil), a.StudyTypes...)
		c.byID[a.ID] = len(c.anchors)
		c.anchors = append(c.anchors, a)
	}

	return c, nil
}

// DefaultCatalog возвращает каталог четырёх канонических рутин.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultAnchors()...)
	if err != nil {
		// Канонические данные статичны и покрыты тестами
		panic(fmt.Sprintf("routine: invalid default catalog: %v", err))
	}
	return c
}

// DefaultAnchors возвращает описания канонических рутин.
func DefaultAnchors() []Anchor {
	return []Anchor{
		{
			ID:          Coffee,
			Name:        "Coffee Break",
			Description: "Morning energy boost learning",
			TimeWindow:  "7-10 AM",
			StudyTypes:  []string{"flashcards", "vocabulary", "quick-review"},
			Difficulty:  DifficultyEasy,
			Window:      WindowMorning,
		},
		{
			ID:          Commute,
			Name:        "Commute",
			Description: "Travel time optimization",
			TimeWindow:  "8-9 AM, 5-6 PM",
			StudyTypes:  []string{"audio-lessons", "podcasts", "voice-notes"},
			Difficulty:  DifficultyMedium,
			Window:      WindowAny,
		},
		{
			ID:          Lunch,
			Name:        "Lunch Break",
			Description: "Midday knowledge snack",
			TimeWindow:  "12-1 PM",
			StudyTypes:  []string{"coding-challenges", "problem-solving", "practice-tests"},
			Difficulty:  DifficultyMedium,
			Window:      WindowLunch,
		},
		{
			ID:          Evening,
			Name:        "Evening Wind-down",
			Description: "Relaxed reflection learning",
			TimeWindow:  "7-9 PM",
			StudyTypes:  []string{"reflection", "deep-learning", "concept-mapping"},
			Difficulty:  DifficultyHard,
			Window:      WindowEvening,
		},
	}
}

// Get возвращает рутину по идентификатору.
func (c *Catalog) Get(id ID) (Anchor, error) {
	idx, ok := c.byID[id]
	if !ok {
		return Anchor{}, shared.WrapError("routine", "Get", shared.ErrUnknownRoutine,
			fmt.Sprintf("routine %q is not registered", id), nil)
	}
	a := c.anchors[idx]
	a.StudyTypes = append([]string(nil), a.StudyTypes...)
	return a, nil
}

// Lookup разбирает строковый идентификатор и возвращает рутину.
func (c *Catalog) Lookup(raw string) (Anchor, error) {
	return c.Get(ID(strings.TrimSpace(raw)))
}

// Has проверяет наличие рутины.
func (c *Catalog) Has(id ID) bool {
	_, ok := c.byID[id]
	return ok
}

// IDs возвращает идентификаторы в порядке регистрации.
func (c *Catalog) IDs() []ID {
	ids := make([]ID, len(c.anchors))
	for i, a := range c.anchors {
		ids[i] = a.ID
	}
	return ids
}

// All возвращает копии всех рутин в порядке регистрации.
func (c *Catalog) All() []Anchor {
	out := make([]Anchor, len(c.anchors))
	for i, a := range c.anchors {
		a.StudyTypes = append([]string(nil), a.StudyTypes...)
		out[i] = a
	}
	return out
}

// Len возвращает количество рутин.
func (c *Catalog) Len() int {
	return len(c.anchors)
}
