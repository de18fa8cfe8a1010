// Package mongo implements the order store on a MongoDB collection.
//
// New orders are written with string UUID ids and Decimal128 amounts. Orders
// written by the older Node backend (ObjectId ids, double amounts, a __v
// version key) are still read, updated and deleted.
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/xenking/chronos-shop/internal/domain/order"
)

// Collection is the collection holding orders.
const Collection = "orders"

// Connect dials MongoDB and verifies the connection.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}
	return client, nil
}

type itemDocument struct {
	Name     string               `bson:"name"`
	Price    primitive.Decimal128 `bson:"price"`
	Quantity int                  `bson:"quantity"`
}

type userDocument struct {
	Name    string `bson:"name"`
	Email   string `bson:"email"`
	Address string `bson:"address"`
}

type orderDocument struct {
	ID            string               `bson:"_id"`
	Items         []itemDocument       `bson:"items"`
	Total         primitive.Decimal128 `bson:"total"`
	User          userDocument         `bson:"user"`
	PaymentMethod string               `bson:"paymentMethod"`
	Status        string               `bson:"status"`
	CreatedAt     time.Time            `bson:"createdAt"`
	UpdatedAt     time.Time            `bson:"updatedAt"`
}

// storedItem and storedOrder are the read side of the documents above. They
// accept every id and amount type found in the collection.
type storedItem struct {
	Name     string        `bson:"name"`
	Price    bson.RawValue `bson:"price"`
	Quantity int           `bson:"quantity"`
}

type storedOrder struct {
	ID            bson.RawValue `bson:"_id"`
	Items         []storedItem  `bson:"items"`
	Total         bson.RawValue `bson:"total"`
	User          userDocument  `bson:"user"`
	PaymentMethod string        `bson:"paymentMethod"`
	Status        string        `bson:"status"`
	CreatedAt     time.Time     `bson:"createdAt"`
	UpdatedAt     time.Time     `bson:"updatedAt"`
}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by MongoDB.
type OrderRepository struct {
	coll *mongo.Collection
}

// NewOrderRepository returns an OrderRepository over the orders collection of db.
func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{coll: db.Collection(Collection)}
}

// EnsureIndexes creates the index backing newest-first listing.
func (r *OrderRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("creating orders index: %w", err)
	}
	return nil
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	doc, err := toDocument(o)
	if err != nil {
		return fmt.Errorf("encoding order %q: %w", o.ID, err)
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// List returns every order, newest first.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := r.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	var docs []storedOrder
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	orders := make([]order.Order, 0, len(docs))
	for _, d := range docs {
		o, err := d.toOrder()
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// Get returns a single order by id.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	var doc storedOrder
	err := r.coll.FindOne(ctx, idFilter(id)).Decode(&doc)
	return decodeOne(doc, err, id)
}

// Update applies the non-nil fields of patch and stamps updatedAt.
func (r *OrderRepository) Update(ctx context.Context, id string, patch order.Patch, at time.Time) (*order.Order, error) {
	set := bson.D{{Key: "updatedAt", Value: at}}
	if patch.Status != nil {
		set = append(set, bson.E{Key: "status", Value: string(*patch.Status)})
	}
	if patch.PaymentMethod != nil {
		set = append(set, bson.E{Key: "paymentMethod", Value: string(*patch.PaymentMethod)})
	}

	var doc storedOrder
	err := r.coll.FindOneAndUpdate(ctx,
		idFilter(id),
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	return decodeOne(doc, err, id)
}

// Delete removes the order with the given id.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, idFilter(id))
	if err != nil {
		return fmt.Errorf("deleting order %q: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return order.ErrNotFound
	}
	return nil
}

// idFilter matches id as a string, and also as an ObjectId when it is one.
func idFilter(id string) bson.D {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return bson.D{{Key: "_id", Value: id}}
	}
	return bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: bson.A{oid, id}}}}}
}

func decodeOne(doc storedOrder, err error, id string) (*order.Order, error) {
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("reading order %q: %w", id, err)
	}
	o, err := doc.toOrder()
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func toDocument(o *order.Order) (orderDocument, error) {
	total, err := primitive.ParseDecimal128(o.Total.String())
	if err != nil {
		return orderDocument{}, fmt.Errorf("total: %w", err)
	}
	items := make([]itemDocument, 0, len(o.Items))
	for _, it := range o.Items {
		price, err := primitive.ParseDecimal128(it.Price.String())
		if err != nil {
			return orderDocument{}, fmt.Errorf("price of %q: %w", it.Name, err)
		}
		items = append(items, itemDocument{Name: it.Name, Price: price, Quantity: it.Quantity})
	}
	return orderDocument{
		ID:            o.ID,
		Items:         items,
		Total:         total,
		User:          userDocument(o.Customer),
		PaymentMethod: string(o.PaymentMethod),
		Status:        string(o.Status),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}, nil
}

func (d storedOrder) toOrder() (order.Order, error) {
	id, err := decodeID(d.ID)
	if err != nil {
		return order.Order{}, err
	}
	total, err := decodeAmount(d.Total)
	if err != nil {
		return order.Order{}, fmt.Errorf("decoding total of order %q: %w", id, err)
	}
	items := make([]order.LineItem, 0, len(d.Items))
	for _, it := range d.Items {
		price, err := decodeAmount(it.Price)
		if err != nil {
			return order.Order{}, fmt.Errorf("decoding item price of order %q: %w", id, err)
		}
		items = append(items, order.LineItem{Name: it.Name, Price: price, Quantity: it.Quantity})
	}
	return order.Order{
		ID:            id,
		Items:         items,
		Total:         total,
		Customer:      order.Customer(d.User),
		PaymentMethod: order.PaymentMethod(d.PaymentMethod),
		Status:        order.Status(d.Status),
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}, nil
}

func decodeID(v bson.RawValue) (string, error) {
	switch v.Type {
	case bsontype.String:
		return v.StringValue(), nil
	case bsontype.ObjectID:
		return v.ObjectID().Hex(), nil
	default:
		return "", fmt.Errorf("decoding order id: unsupported type %s", v.Type)
	}
}

// decodeAmount reads a money value. Doubles come from the Node backend and
// are taken at their shortest decimal representation.
func decodeAmount(v bson.RawValue) (decimal.Decimal, error) {
	switch v.Type {
	case bsontype.Decimal128:
		return decimal.NewFromString(v.Decimal128().String())
	case bsontype.Double:
		return decimal.NewFromFloat(v.Double()), nil
	case bsontype.Int32:
		return decimal.NewFromInt32(v.Int32()), nil
	case bsontype.Int64:
		return decimal.NewFromInt(v.Int64()), nil
	case bsontype.String:
		return decimal.NewFromString(v.StringValue())
	default:
		return decimal.Decimal{}, fmt.Errorf("unsupported type %s", v.Type)
	}
}
