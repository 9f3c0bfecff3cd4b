package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anonto42/nano-midea/social/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrPostNotFound is returned when no post matches the given ID.
var ErrPostNotFound = errors.New("post not found")

// ErrInvalidPostID is returned for IDs that are not a MongoDB ObjectID hex string.
var ErrInvalidPostID = errors.New("invalid post ID format")

// PostRepository defines the interface for post data operations
type PostRepository interface {
	CreatePost(ctx context.Context, post *models.Post) error
	GetPostByID(ctx context.Context, id string) (*models.Post, error)
	GetPostsByUserID(ctx context.Context, userID uint, skip, limit int64) ([]models.Post, error)
	CountPostsByUserID(ctx context.Context, userID uint) (int64, error)
	GetAllPosts(ctx context.Context, skip, limit int64) ([]models.Post, error)
	GetMostLikedPosts(ctx context.Context, skip, limit int64) ([]models.Post, error)
	CountPosts(ctx context.Context) (int64, error)
	UpdatePost(ctx context.Context, id string, post *models.Post) error
	DeletePost(ctx context.Context, id string) error
	AdjustLikesCount(ctx context.Context, postID string, delta int) error
	AdjustCommentsCount(ctx context.Context, postID string, delta int) error
}

// MongoPostRepository implements PostRepository for MongoDB
type MongoPostRepository struct {
	collection *mongo.Collection
}

// NewMongoPostRepository creates a new MongoPostRepository
func NewMongoPostRepository(db *mongo.Database) *MongoPostRepository {
	return &MongoPostRepository{collection: db.Collection("posts")}
}

// EnsureIndexes creates the indexes the feed queries sort and filter on.
func (r *MongoPostRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "likes_count", Value: -1}, {Key: "created_at", Value: -1}}},
	})
	return err
}

func parseObjectID(id string) (primitive.ObjectID, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", ErrInvalidPostID, id)
	}
	return objID, nil
}

func (r *MongoPostRepository) CreatePost(ctx context.Context, post *models.Post) error {
	now := time.Now().UTC()
	post.ID = primitive.NewObjectID()
	post.CreatedAt = now
	post.UpdatedAt = now
	_, err := r.collection.InsertOne(ctx, post)
	return err
}

func (r *MongoPostRepository) GetPostByID(ctx context.Context, id string) (*models.Post, error) {
	objID, err := parseObjectID(id)
	if err != nil {
		return nil, ErrPostNotFound
	}

	var post models.Post
	err = r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&post)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return &post, nil
}

func (r *MongoPostRepository) find(ctx context.Context, filter any, sort bson.D, skip, limit int64) ([]models.Post, error) {
	posts := []models.Post{}
	findOptions := options.Find().SetSkip(skip).SetLimit(limit).SetSort(sort)
	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// GetPostsByUserID returns one author's posts, newest first.
func (r *MongoPostRepository) GetPostsByUserID(ctx context.Context, userID uint, skip, limit int64) ([]models.Post, error) {
	return r.find(ctx, bson.M{"user_id": userID}, bson.D{{Key: "created_at", Value: -1}}, skip, limit)
}

func (r *MongoPostRepository) CountPostsByUserID(ctx context.Context, userID uint) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"user_id": userID})
}

// GetAllPosts returns every post, newest first.
func (r *MongoPostRepository) GetAllPosts(ctx context.Context, skip, limit int64) ([]models.Post, error) {
	return r.find(ctx, bson.D{}, bson.D{{Key: "created_at", Value: -1}}, skip, limit)
}

// GetMostLikedPosts backs the explore page: most liked first, newest breaking ties.
func (r *MongoPostRepository) GetMostLikedPosts(ctx context.Context, skip, limit int64) ([]models.Post, error) {
	sort := bson.D{{Key: "likes_count", Value: -1}, {Key: "created_at", Value: -1}}
	return r.find(ctx, bson.D{}, sort, skip, limit)
}

func (r *MongoPostRepository) CountPosts(ctx context.Context) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.D{})
}

func (r *MongoPostRepository) UpdatePost(ctx context.Context, id string, post *models.Post) error {
	objID, err := parseObjectID(id)
	if err != nil {
		return err
	}

	post.UpdatedAt = time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"content":    post.Content,
			"image_urls": post.ImageURLs,
			"video_urls": post.VideoURLs,
			"updated_at": post.UpdatedAt,
		},
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrPostNotFound
	}
	return nil
}

func (r *MongoPostRepository) DeletePost(ctx context.Context, id string) error {
	objID, err := parseObjectID(id)
	if err != nil {
		return err
	}

	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": objID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrPostNotFound
	}
	return nil
}

// AdjustLikesCount adds delta to the post's likes_count, never taking it below zero.
func (r *MongoPostRepository) AdjustLikesCount(ctx context.Context, postID string, delta int) error {
	return r.adjustCounter(ctx, postID, "likes_count", delta)
}

// AdjustCommentsCount adds delta to the post's comments_count, never taking it below zero.
func (r *MongoPostRepository) AdjustCommentsCount(ctx context.Context, postID string, delta int) error {
	return r.adjustCounter(ctx, postID, "comments_count", delta)
}

func (r *MongoPostRepository) adjustCounter(ctx context.Context, postID, field string, delta int) error {
	objID, err := parseObjectID(postID)
	if err != nil {
		return err
	}
	filter := bson.M{"_id": objID}
	if delta < 0 {
		filter[field] = bson.M{"$gte": -delta}
	}
	_, err = r.collection.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{field: delta}})
	return err
}
