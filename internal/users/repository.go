package users

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/viewtube/viewtube-backend/internal/models"
)

var (
	// ErrNotFound means no principal matched the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrRotateConflict means the conditional rotate did not match the
	// stored refresh token: either it was already rotated away or cleared.
	ErrRotateConflict = errors.New("stored refresh token does not match")
)

// Repository is the credential-store contract. All mutations are atomic
// single-document operations; RotateRefreshToken in particular must be a
// compare-and-swap on the stored refresh token so that two concurrent
// rotations of the same token cannot both succeed.
type Repository interface {
	Create(ctx context.Context, u *models.User) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	UpdateRefreshToken(ctx context.Context, id, token string) error
	RotateRefreshToken(ctx context.Context, id, presented, next string) error
	ClearRefreshToken(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// MongoRepository implements Repository using a Mongo collection
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Create(ctx context.Context, u *models.User) (*models.User, error) {
	now := time.Now().UTC()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	u.CreatedAt = now
	u.UpdatedAt = now
	if _, err := r.col.InsertOne(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (r *MongoRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

// FindByIdentifier resolves a principal by userName or email.
func (r *MongoRepository) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"$or": bson.A{
		bson.M{"userName": identifier},
		bson.M{"email": identifier},
	}})
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	if err := r.col.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *MongoRepository) UpdateRefreshToken(ctx context.Context, id, token string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": oid},
		bson.M{"$set": bson.M{"refreshToken": token, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// RotateRefreshToken replaces the stored refresh token with next, but only
// while the stored value still equals presented. The filter makes the
// check-and-overwrite a single atomic document update, so of two concurrent
// rotations of the same token exactly one can match.
func (r *MongoRepository) RotateRefreshToken(ctx context.Context, id, presented, next string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": oid, "refreshToken": presented},
		bson.M{"$set": bson.M{"refreshToken": next, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrRotateConflict
	}
	return nil
}

func (r *MongoRepository) ClearRefreshToken(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": oid},
		bson.M{
			"$unset": bson.M{"refreshToken": ""},
			"$set":   bson.M{"updatedAt": time.Now().UTC()},
		})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": oid},
		bson.M{"$set": bson.M{"password": passwordHash, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
