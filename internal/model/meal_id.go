package model

import (
	"bytes"
	"encoding/json"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrInvalidMealID is returned when a meal identifier is not a 24 character
// hexadecimal ObjectID. Such requests never reach storage.
var ErrInvalidMealID = errors.New("invalid meal id")

// MealID is the opaque identifier of a meal. Every store backend uses the
// same ObjectID encoding so ids stay stable when the backend changes.
type MealID primitive.ObjectID

// NewMealID mints a fresh identifier. Ids minted by one process sort in
// creation order.
func NewMealID() MealID { return MealID(primitive.NewObjectID()) }

// ParseMealID validates raw input from a client and converts it into a MealID.
func ParseMealID(s string) (MealID, error) {
	oid, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return MealID{}, ErrInvalidMealID
	}
	return MealID(oid), nil
}

// ObjectID returns the id in the driver's native form.
func (id MealID) ObjectID() primitive.ObjectID { return primitive.ObjectID(id) }

// Hex renders the id as 24 lowercase hex characters.
func (id MealID) Hex() string { return primitive.ObjectID(id).Hex() }

func (id MealID) String() string { return id.Hex() }

// Compare orders ids bytewise, which for ids from one process is mint order.
func (id MealID) Compare(other MealID) int { return bytes.Compare(id[:], other[:]) }

// MarshalJSON renders the id as a plain JSON string.
func (id MealID) MarshalJSON() ([]byte, error) { return json.Marshal(id.Hex()) }

// UnmarshalJSON accepts the string form produced by MarshalJSON.
func (id *MealID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseMealID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
