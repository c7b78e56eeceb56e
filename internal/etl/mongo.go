package etl

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/BartekS5/salesetl/pkg/models"
	"github.com/BartekS5/salesetl/pkg/utils"
)

// MongoSink keeps the summary as one document per product in a collection.
// UpdateOne with upsert is atomic per document.
type MongoSink struct {
	coll *mongo.Collection
}

var _ Sink = (*MongoSink)(nil)

func NewMongoSink(client *mongo.Client, database, collection string) *MongoSink {
	return &MongoSink{coll: client.Database(database).Collection(collection)}
}

func (m *MongoSink) EnsureSchema(ctx context.Context) error {
	_, err := m.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: models.ColProductID, Value: 1}},
		Options: options.Index().SetUnique(true).SetName("product_id_unique"),
	})
	if err != nil {
		return fmt.Errorf("create product_id index: %w", err)
	}
	return nil
}

func (m *MongoSink) Upsert(ctx context.Context, agg models.ProductAggregate) error {
	amount, err := primitive.ParseDecimal128(agg.TotalSaleAmount.StringFixed(2))
	if err != nil {
		return fmt.Errorf("product %d amount %s: %w", agg.ProductID, agg.TotalSaleAmount, err)
	}

	filter := bson.M{models.ColProductID: agg.ProductID}
	update := bson.M{
		"$set": bson.M{
			"total_quantity":    agg.TotalQuantity,
			"total_sale_amount": amount,
		},
		"$currentDate": bson.M{"last_updated": true},
	}
	if _, err := m.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("upsert product %d: %w", agg.ProductID, err)
	}
	return nil
}

func (m *MongoSink) Summary(ctx context.Context) ([]models.SummaryRow, error) {
	cursor, err := m.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.M{models.ColProductID: 1}))
	if err != nil {
		return nil, fmt.Errorf("find summary: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.SummaryRow
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode summary document: %w", err)
		}
		row, err := summaryFromDocument(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, cursor.Err()
}

func summaryFromDocument(doc bson.M) (models.SummaryRow, error) {
	var (
		row models.SummaryRow
		err error
	)
	if row.ProductID, err = utils.ConvertToInt64(doc[models.ColProductID]); err != nil {
		return row, fmt.Errorf("summary document product_id: %w", err)
	}
	if row.TotalQuantity, err = utils.ConvertToInt64(doc["total_quantity"]); err != nil {
		return row, fmt.Errorf("product %d total_quantity: %w", row.ProductID, err)
	}
	if row.TotalSaleAmount, err = utils.ConvertToDecimal(doc["total_sale_amount"]); err != nil {
		return row, fmt.Errorf("product %d total_sale_amount: %w", row.ProductID, err)
	}
	if ts, ok := doc["last_updated"]; ok && ts != nil {
		if row.LastUpdated, err = utils.ConvertDateTime(ts); err != nil {
			return row, fmt.Errorf("product %d last_updated: %w", row.ProductID, err)
		}
	}
	return row, nil
}
