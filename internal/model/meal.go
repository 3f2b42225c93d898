package model

import "time"

// Meal is a dish offered by a student chef with a fixed serving capacity.
// ServingsLeft is the only field that changes after creation and it only
// ever changes through the store's conditional decrement.
//
// Fields:
//  ID           – store-assigned identifier, rendered as a string.
//  Title        – display title ("Untitled Meal" when not supplied).
//  Description  – free text, empty by default.
//  Chef         – display name ("Anonymous Chef" when not supplied).
//  ChefBio      – free text about the chef.
//  Dorm         – pickup location.
//  Price        – amount charged per serving; not validated.
//  Servings     – total capacity set at creation.
//  ServingsLeft – servings still available for reservation.
//  Image        – optional image URI, empty when absent.
//  Tags         – ordered display tags, duplicates allowed, never nil.
//  DishMatters  – cultural or origin note about the dish.
//  Rating       – display rating, 5.0 by default.
//  Orders       – order counter, 0 by default; reservations leave it alone.
//  OriginKey    – optional geographic origin key.
//  Lat, Lng     – coordinates, only kept together with OriginKey.
//  CreatedAt    – creation timestamp (UTC), immutable.
//  UpdatedAt    – last mutation timestamp (UTC).
type Meal struct {
	ID           MealID    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Chef         string    `json:"chef"`
	ChefBio      string    `json:"chefBio"`
	Dorm         string    `json:"dorm"`
	Price        float64   `json:"price"`
	Servings     int       `json:"servings"`
	ServingsLeft int       `json:"servingsLeft"`
	Image        string    `json:"image"`
	Tags         []string  `json:"tags"`
	DishMatters  string    `json:"dishMatters"`
	Rating       float64   `json:"rating"`
	Orders       int       `json:"orders"`
	OriginKey    *string   `json:"originKey"`
	Lat          *float64  `json:"lat"`
	Lng          *float64  `json:"lng"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SoldOut reports whether no serving can be reserved.
func (m *Meal) SoldOut() bool { return m.ServingsLeft <= 0 }
