// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	dailysetstore "github.com/dalemusser/stratabox/internal/app/store/dailyset"
	rankingsetstore "github.com/dalemusser/stratabox/internal/app/store/rankingset"
	runstore "github.com/dalemusser/stratabox/internal/app/store/runs"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database and backend dependencies for this WAFFLE app.
//
// This struct is created in ConnectDB and passed to subsequent lifecycle
// hooks: EnsureSchema, Startup, BuildHandler, and Shutdown. The Shutdown
// hook closes these connections when the application terminates.
type DBDeps struct {
	// MongoDB client and database
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	// Dataset and run log repositories over MongoDatabase
	Rankings *rankingsetstore.Store
	Daily    *dailysetstore.Store
	Runs     *runstore.Store
}
