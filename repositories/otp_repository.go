package repositories

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/goodpass/goodpass_backend/config"
	"github.com/goodpass/goodpass_backend/models"
)

// OTPRepository is the MongoDB implementation of services.OTPStore.
type OTPRepository struct {
	otps  *mongo.Collection
	users *mongo.Collection
}

func NewOTPRepository(db *mongo.Client) *OTPRepository {
	return &OTPRepository{
		otps:  config.GetCollection(db, "otps"),
		users: config.GetCollection(db, "users"),
	}
}

func (r *OTPRepository) Insert(ctx context.Context, rec *models.OtpRecord) error {
	res, err := r.otps.InsertOne(ctx, rec)
	if err != nil {
		return err
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		rec.ID = id
	}
	return nil
}

// FindNewestActive selects the most recently created unverified, unexpired
// record for a phone. Older still-valid codes stay in place but become
// unreachable, superseded by the newer issuance.
func (r *OTPRepository) FindNewestActive(ctx context.Context, phone string, now time.Time) (*models.OtpRecord, error) {
	filter := bson.M{
		"phone":     phone,
		"verified":  false,
		"expiresAt": bson.M{"$gt": now},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	var rec models.OtpRecord
	err := r.otps.FindOne(ctx, filter, opts).Decode(&rec)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// MarkVerified flips verified=true with the unverified state in the filter,
// so of two racing verifies only one observes a modification.
func (r *OTPRepository) MarkVerified(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := r.otps.UpdateOne(
		ctx,
		bson.M{"_id": id, "verified": false},
		bson.M{"$set": bson.M{"verified": true}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (r *OTPRepository) SetPhoneVerified(ctx context.Context, userID primitive.ObjectID) error {
	_, err := r.users.UpdateOne(
		ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"phoneVerified": true, "updatedAt": time.Now()}},
	)
	return err
}

func (r *OTPRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.otps.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lt": now}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
