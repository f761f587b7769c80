package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// DayLayout is the calendar-day format used by dated records.
const DayLayout = "2006-01-02"

// Payload is the entity-specific part of a record. The set of
// implementations is closed: Food, DiaryEntry, Weight and Water.
type Payload interface {
	Entity() Entity
	// Day returns the calendar day the record is filed under, or "" for
	// undated records.
	Day() string
	payload()
}

type ServingType string

const (
	ServingWeight ServingType = "weight"
	ServingVolume ServingType = "volume"
	ServingUnit   ServingType = "unit"
)

type CustomServing struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Grams float64 `json:"grams"`
}

type Serving struct {
	Type           ServingType     `json:"type,omitempty"`
	ServingSizeG   float64         `json:"servingSizeG,omitempty"`
	ServingSizeMl  float64         `json:"servingSizeMl,omitempty"`
	BaseUnit       string          `json:"baseUnit,omitempty"`
	CustomServings []CustomServing `json:"customServings,omitempty"`
}

type Macros struct {
	Kcal    float64 `json:"kcal"`
	Protein float64 `json:"protein"`
	Carbs   float64 `json:"carbs"`
	Fat     float64 `json:"fat"`
}

type FoodSource string

const (
	SourceCustom        FoodSource = "custom"
	SourceOpenFoodFacts FoodSource = "openfoodfacts"
	SourceUSDA          FoodSource = "usda"
)

// Food is a food item with per-serving nutrient values.
type Food struct {
	Name       string     `json:"name"`
	Brand      string     `json:"brand,omitempty"`
	Serving    Serving    `json:"serving"`
	Macros     Macros     `json:"macros"`
	Source     FoodSource `json:"source,omitempty"`
	ExternalID string     `json:"externalId,omitempty"`
	Barcode    string     `json:"barcode,omitempty"`
}

func (Food) Entity() Entity { return EntityFood }
func (Food) Day() string    { return "" }
func (Food) payload()       {}

type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
	MealSnack     MealType = "snack"
)

type Quantity struct {
	Grams           float64 `json:"grams"`
	Unit            string  `json:"unit,omitempty"`
	CustomServingID string  `json:"customServingId,omitempty"`
	DisplayValue    float64 `json:"displayValue,omitempty"`
	DisplayUnit     string  `json:"displayUnit,omitempty"`
}

// DiaryEntry is one logged portion of a food.
//
// FoodID is the remote identity of the referenced food. While that food is
// still local-only, FoodLocalKey points at its local record instead and the
// entry cannot be replayed until the food has a remote identity.
type DiaryEntry struct {
	Date           string          `json:"date"`
	MealType       MealType        `json:"mealType"`
	FoodID         string          `json:"foodId,omitempty"`
	FoodLocalKey   int64           `json:"foodLocalKey,omitempty"`
	Quantity       Quantity        `json:"quantity"`
	ComputedMacros json.RawMessage `json:"computedMacros,omitempty"`
}

// UnmarshalJSON accepts foodId either as an id or as the populated food
// document, in which case its _id is kept.
func (d *DiaryEntry) UnmarshalJSON(b []byte) error {
	type plain DiaryEntry
	aux := struct {
		*plain
		FoodID json.RawMessage `json:"foodId"`
	}{plain: (*plain)(d)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	id, err := foodRef(aux.FoodID)
	if err != nil {
		return fmt.Errorf("diary entry foodId: %w", err)
	}
	d.FoodID = id
	return nil
}

func foodRef(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] != '{' {
		var id string
		err := json.Unmarshal(raw, &id)
		return id, err
	}
	var doc struct {
		DocID string `json:"_id"`
		ID    string `json:"id"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", err
	}
	if doc.DocID != "" {
		return doc.DocID, nil
	}
	return doc.ID, nil
}

func (DiaryEntry) Entity() Entity   { return EntityEntry }
func (d DiaryEntry) Day() string    { return d.Date }
func (DiaryEntry) payload()         {}
func (d DiaryEntry) Resolved() bool { return d.FoodID != "" || d.FoodLocalKey == 0 }

// Weight is a body-weight sample.
type Weight struct {
	Date     string  `json:"date"`
	WeightKg float64 `json:"weightKg"`
}

func (Weight) Entity() Entity { return EntityWeight }
func (w Weight) Day() string  { return w.Date }
func (Weight) payload()       {}

// Water is the water intake of one day.
type Water struct {
	Date     string `json:"date"`
	AmountMl int    `json:"amountMl"`
}

func (Water) Entity() Entity { return EntityWater }
func (w Water) Day() string  { return w.Date }
func (Water) payload()       {}

// DecodePayload unmarshals raw into the payload type of entity.
func DecodePayload(entity Entity, raw []byte) (Payload, error) {
	switch entity {
	case EntityFood:
		return decode[Food](raw)
	case EntityEntry:
		return decode[DiaryEntry](raw)
	case EntityWeight:
		return decode[Weight](raw)
	case EntityWater:
		return decode[Water](raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, string(entity))
	}
}

func decode[T Payload](raw []byte) (Payload, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", v.Entity(), err)
	}
	return v, nil
}

// Today formats t as a calendar day.
func Today(t time.Time) string {
	return t.Format(DayLayout)
}
