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

// ReportRepository is the MongoDB implementation of services.ReportStore,
// plus the report CRUD used by the report controller.
type ReportRepository struct {
	reports *mongo.Collection
	proofs  *mongo.Collection
}

func NewReportRepository(db *mongo.Client) *ReportRepository {
	return &ReportRepository{
		reports: config.GetCollection(db, "reports"),
		proofs:  config.GetCollection(db, "proofs"),
	}
}

func (r *ReportRepository) InsertReport(ctx context.Context, report *models.Report) error {
	res, err := r.reports.InsertOne(ctx, report)
	if err != nil {
		return err
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		report.ID = id
	}
	return nil
}

func (r *ReportRepository) FindReport(ctx context.Context, id primitive.ObjectID) (*models.Report, error) {
	var report models.Report
	err := r.reports.FindOne(ctx, bson.M{"_id": id}).Decode(&report)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &report, nil
}

func (r *ReportRepository) ListReportsByReporter(ctx context.Context, reporterID primitive.ObjectID) ([]models.Report, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.reports.Find(ctx, bson.M{"reporterId": reporterID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var reports []models.Report
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

func (r *ReportRepository) ListProofs(ctx context.Context, reportID primitive.ObjectID) ([]models.ProofDocument, error) {
	opts := options.Find().SetSort(bson.D{{Key: "uploadedAt", Value: 1}})
	cursor, err := r.proofs.Find(ctx, bson.M{"reportId": reportID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var proofs []models.ProofDocument
	if err := cursor.All(ctx, &proofs); err != nil {
		return nil, err
	}
	return proofs, nil
}

func (r *ReportRepository) InsertProof(ctx context.Context, proof *models.ProofDocument) error {
	res, err := r.proofs.InsertOne(ctx, proof)
	if err != nil {
		return err
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		proof.ID = id
	}
	return nil
}

// MarkProofInvalid flips a proof's status to invalid; it reports whether a
// proof with that ID existed.
func (r *ReportRepository) MarkProofInvalid(ctx context.Context, proofID string) (bool, error) {
	res, err := r.proofs.UpdateOne(
		ctx,
		bson.M{"proofId": proofID},
		bson.M{"$set": bson.M{"status": models.ProofStatusInvalid}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// UpdateInstallmentAmount overrides the stored per-installment amount on the
// loan info and on every installment row. The filter requires loan info to
// exist, so a report without it reports no match.
func (r *ReportRepository) UpdateInstallmentAmount(ctx context.Context, reportID primitive.ObjectID, amount float64) (bool, error) {
	res, err := r.reports.UpdateOne(
		ctx,
		bson.M{"_id": reportID, "loanInfo": bson.M{"$exists": true}},
		bson.M{"$set": bson.M{
			"loanInfo.installmentAmount": amount,
			"updatedAt":                  time.Now(),
		}},
	)
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 0 {
		return false, nil
	}

	// $[] rejects documents without the array, so installment rows are
	// updated separately; lump-sum reports have none.
	_, err = r.reports.UpdateOne(
		ctx,
		bson.M{"_id": reportID, "installments.0": bson.M{"$exists": true}},
		bson.M{"$set": bson.M{"installments.$[].amount": amount}},
	)
	if err != nil {
		return false, err
	}
	return true, nil
}
