package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/identitylabs/identity-system/internal/core/domain"
	"github.com/identitylabs/identity-system/internal/core/ports"
)

const userCollection = "users"

// MongoUserRepository is the MongoDB adapter for ports.UserRepository.
// Uniqueness of username and email is enforced by unique indexes; under
// concurrent registration the index, not the Exists pre-check, decides the
// winner.
type MongoUserRepository struct {
	coll *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{coll: db.Collection(userCollection)}
}

// EnsureIndexes creates the unique indexes the repository contract relies
// on. Call once at startup.
func (r *MongoUserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

type mongoUser struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Username     string             `bson:"username"`
	Email        string             `bson:"email"`
	FullName     string             `bson:"full_name,omitempty"`
	Disabled     bool               `bson:"disabled"`
	PasswordHash string             `bson:"password_hash"`
	CreatedAt    int64              `bson:"created_at"`
	UpdatedAt    int64              `bson:"updated_at"`
}

func (mu *mongoUser) toDomain() *domain.User {
	return &domain.User{
		ID:           mu.ID.Hex(),
		Username:     mu.Username,
		Email:        mu.Email,
		FullName:     mu.FullName,
		Disabled:     mu.Disabled,
		PasswordHash: mu.PasswordHash,
		CreatedAt:    unixToTime(mu.CreatedAt),
		UpdatedAt:    unixToTime(mu.UpdatedAt),
	}
}

func (r *MongoUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *MongoUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var mu mongoUser
	if err := r.coll.FindOne(ctx, filter).Decode(&mu); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return mu.toDomain(), nil
}

// Exists checks both uniqueness constraints in one round trip so a
// registration attempt can report username and email collisions together.
func (r *MongoUserRepository) Exists(ctx context.Context, username, email string) (ports.Existence, error) {
	cursor, err := r.coll.Find(ctx,
		bson.M{"$or": bson.A{
			bson.M{"username": username},
			bson.M{"email": email},
		}},
		options.Find().SetProjection(bson.M{"username": 1, "email": 1}),
	)
	if err != nil {
		return ports.Existence{}, fmt.Errorf("check user existence: %w", err)
	}
	defer cursor.Close(ctx)

	var existence ports.Existence
	for cursor.Next(ctx) {
		var mu mongoUser
		if err := cursor.Decode(&mu); err != nil {
			return ports.Existence{}, fmt.Errorf("decode user: %w", err)
		}
		if mu.Username == username {
			existence.UsernameExists = true
		}
		if mu.Email == email {
			existence.EmailExists = true
		}
	}
	if err := cursor.Err(); err != nil {
		return ports.Existence{}, fmt.Errorf("check user existence: %w", err)
	}
	return existence, nil
}

// Create inserts the user. A duplicate-key error means a concurrent
// registration won the race; the colliding fields are re-checked so the
// caller still gets a per-field conflict report. Insertion is a single
// document write — there is no partial record to clean up on failure.
func (r *MongoUserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	doc := mongoUser{
		Username:     user.Username,
		Email:        user.Email,
		FullName:     user.FullName,
		Disabled:     user.Disabled,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt.Unix(),
		UpdatedAt:    user.UpdatedAt.Unix(),
	}

	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, r.conflictFor(ctx, user.Username, user.Email)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	created := user.Clone()
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		created.ID = oid.Hex()
	}
	return created, nil
}

func (r *MongoUserRepository) conflictFor(ctx context.Context, username, email string) error {
	existence, err := r.Exists(ctx, username, email)
	if err != nil || (!existence.UsernameExists && !existence.EmailExists) {
		// Race winner is not visible yet or the check failed; report the
		// conflict without field detail rather than a spurious server error.
		return &domain.ConflictError{}
	}
	return &domain.ConflictError{
		UsernameTaken: existence.UsernameExists,
		EmailTaken:    existence.EmailExists,
	}
}

func unixToTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}
