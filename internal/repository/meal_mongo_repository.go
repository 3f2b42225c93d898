package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/naavyaj-29/DormDash/internal/model"
)

// MealMongoRepo stores meals as documents in a MongoDB collection. Field
// names in the documents match the JSON representation; only id becomes _id.
type MealMongoRepo struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMealMongoRepo returns a repo backed by the given collection.
func NewMealMongoRepo(coll *mongo.Collection) *MealMongoRepo {
	return &MealMongoRepo{coll: coll, now: time.Now}
}

// mealDocument is the persisted shape of a meal.
type mealDocument struct {
	ID           primitive.ObjectID `bson:"_id"`
	Title        string             `bson:"title"`
	Description  string             `bson:"description"`
	Chef         string             `bson:"chef"`
	ChefBio      string             `bson:"chefBio"`
	Dorm         string             `bson:"dorm"`
	Price        float64            `bson:"price"`
	Servings     int                `bson:"servings"`
	ServingsLeft int                `bson:"servingsLeft"`
	Image        string             `bson:"image"`
	Tags         []string           `bson:"tags"`
	DishMatters  string             `bson:"dishMatters"`
	Rating       float64            `bson:"rating"`
	Orders       int                `bson:"orders"`
	OriginKey    *string            `bson:"originKey"`
	Lat          *float64           `bson:"lat"`
	Lng          *float64           `bson:"lng"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

func documentFromMeal(m model.Meal) mealDocument {
	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}
	return mealDocument{
		ID: m.ID.ObjectID(), Title: m.Title, Description: m.Description,
		Chef: m.Chef, ChefBio: m.ChefBio, Dorm: m.Dorm, Price: m.Price,
		Servings: m.Servings, ServingsLeft: m.ServingsLeft, Image: m.Image,
		Tags: tags, DishMatters: m.DishMatters, Rating: m.Rating, Orders: m.Orders,
		OriginKey: m.OriginKey, Lat: m.Lat, Lng: m.Lng,
		CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func (d mealDocument) toMeal() *model.Meal {
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	return &model.Meal{
		ID: model.MealID(d.ID), Title: d.Title, Description: d.Description,
		Chef: d.Chef, ChefBio: d.ChefBio, Dorm: d.Dorm, Price: d.Price,
		Servings: d.Servings, ServingsLeft: d.ServingsLeft, Image: d.Image,
		Tags: tags, DishMatters: d.DishMatters, Rating: d.Rating, Orders: d.Orders,
		OriginKey: d.OriginKey, Lat: d.Lat, Lng: d.Lng,
		CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}
}

// EnsureIndexes creates the createdAt index used by ListAll. It is
// idempotent and safe to call on every start.
func (r *MealMongoRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: -1}},
	})
	return err
}

// Create inserts the meal and reads it back.
func (r *MealMongoRepo) Create(ctx context.Context, m model.Meal) (*model.Meal, error) {
	// BSON dates carry millisecond precision
	now := r.now().UTC().Truncate(time.Millisecond)
	m.ID = model.NewMealID()
	m.CreatedAt, m.UpdatedAt = now, now
	if _, err := r.coll.InsertOne(ctx, documentFromMeal(m)); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, m.ID)
}

// ListAll returns every meal, newest first.
func (r *MealMongoRepo) ListAll(ctx context.Context) ([]model.Meal, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := r.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	var docs []mealDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	meals := make([]model.Meal, 0, len(docs))
	for _, d := range docs {
		meals = append(meals, *d.toMeal())
	}
	return meals, nil
}

// GetByID returns ErrMealNotFound when no document has the id.
func (r *MealMongoRepo) GetByID(ctx context.Context, id model.MealID) (*model.Meal, error) {
	var doc mealDocument
	err := r.coll.FindOne(ctx, bson.M{"_id": id.ObjectID()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrMealNotFound
		}
		return nil, err
	}
	return doc.toMeal(), nil
}

// DecrementServings issues a single findAndModify whose filter carries the
// servingsLeft > 0 precondition, so the server applies check and decrement
// as one step and returns the post-update document.
func (r *MealMongoRepo) DecrementServings(ctx context.Context, id model.MealID) (*model.Meal, error) {
	filter := bson.M{"_id": id.ObjectID(), "servingsLeft": bson.M{"$gt": 0}}
	update := bson.M{
		"$inc": bson.M{"servingsLeft": -1},
		"$set": bson.M{"updatedAt": r.now().UTC().Truncate(time.Millisecond)},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc mealDocument
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return doc.toMeal(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}
	return nil, r.missingOrSoldOut(ctx, id)
}

func (r *MealMongoRepo) missingOrSoldOut(ctx context.Context, id model.MealID) error {
	opts := options.FindOne().SetProjection(bson.M{"_id": 1})
	err := r.coll.FindOne(ctx, bson.M{"_id": id.ObjectID()}, opts).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrMealNotFound
	}
	if err != nil {
		return err
	}
	return ErrSoldOut
}
