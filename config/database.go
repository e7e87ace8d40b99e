package config

import (
	"context"
	"log"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	Client                   *mongo.Client
	OrderCollection          *mongo.Collection
	PaymentRequestCollection *mongo.Collection
	CaisseCollection         *mongo.Collection
	CounterCollection        *mongo.Collection
	UserCollection           *mongo.Collection
	SessionCollection        *mongo.Collection
)

func ConnectDatabase() {
	client, err := mongo.NewClient(options.Client().ApplyURI(os.Getenv("MONGO_URI")))
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = client.Connect(ctx)
	if err != nil {
		log.Fatal(err)
	}

	err = client.Ping(ctx, nil)
	if err != nil {
		log.Fatal(err)
	}

	Client = client
	db := os.Getenv("MONGO_DB")
	if db == "" {
		db = "tresorerie"
	}

	OrderCollection = Client.Database(db).Collection("commandes")
	PaymentRequestCollection = Client.Database(db).Collection("paiements")
	CaisseCollection = Client.Database(db).Collection("caisses")
	CounterCollection = Client.Database(db).Collection("counters")
	UserCollection = Client.Database(db).Collection("users")
	SessionCollection = Client.Database(db).Collection("sessions")

	log.Println("Connected to MongoDB")
}
